package stages

import (
	"fmt"
	"strings"
)

func checkSchema(got, want string) error {
	if strings.TrimSpace(got) != want {
		return fmt.Errorf("schema version %q, want %q", got, want)
	}
	return nil
}

func checkRatio(field string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s %.3f outside [0,1]", field, value)
	}
	return nil
}
