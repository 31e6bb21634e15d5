package flowkernel

import (
	"fmt"
	"reflect"
	"strings"
)

// ConfigChange is one field that differs between two configurations.
type ConfigChange struct {
	// FieldPath is the dotted yaml path of the field, e.g. "kernel.stop_timeout".
	FieldPath string `json:"field"`
	OldValue  any    `json:"old"`
	NewValue  any    `json:"new"`
	// Dynamic is set for fields Reconfigure applies to a running kernel.
	Dynamic bool `json:"dynamic"`
}

func (c ConfigChange) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.FieldPath, c.OldValue, c.NewValue)
}

// dynamicFields are applied by Kernel.Reconfigure without a restart.
var dynamicFields = map[string]bool{
	"kernel.progress_schedule": true,
}

// DiffConfig lists the leaf fields whose values differ between oldCfg and
// newCfg, in declaration order. A nil config compares as the zero Config.
func DiffConfig(oldCfg, newCfg *Config) []ConfigChange {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changes []ConfigChange
	diffStruct("", reflect.ValueOf(*oldCfg), reflect.ValueOf(*newCfg), &changes)
	return changes
}

func diffStruct(prefix string, oldV, newV reflect.Value, changes *[]ConfigChange) {
	t := oldV.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			name = strings.ToLower(field.Name)
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		o, n := oldV.Field(i), newV.Field(i)
		if field.Type.Kind() == reflect.Struct {
			diffStruct(path, o, n, changes)
			continue
		}
		if reflect.DeepEqual(o.Interface(), n.Interface()) {
			continue
		}
		*changes = append(*changes, ConfigChange{
			FieldPath: path,
			OldValue:  o.Interface(),
			NewValue:  n.Interface(),
			Dynamic:   dynamicFields[path],
		})
	}
}
