package hack

import _ "embed"

var (
	//go:embed x708ups.service
	SystemdUnitTemplate string
)
