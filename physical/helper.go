package physical

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
)

// DecodeConfig decodes the string options of a storage block into out, a
// pointer to a struct with mapstructure tags. The "type" key is ignored and
// any other unknown key is an error. Durations accept Go syntax or a bare
// number of seconds.
func DecodeConfig(conf map[string]string, out any) error {
	input := make(map[string]string, len(conf))
	for k, v := range conf {
		if k == "type" {
			continue
		}
		input[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       durationHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}
	return nil
}

func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	return parseutil.ParseDurationSecond(data)
}
