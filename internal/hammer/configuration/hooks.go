package configuration

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		SecondsDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

// SecondsDurationHookFunc decodes whole numbers into durations of that many seconds, the unit every
// timeout flag is given in. Strings that are not whole numbers are parsed as Go durations, e.g. "1m30s".
func SecondsDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		case reflect.String:
			s := data.(string)
			if seconds, err := strconv.Atoi(s); err == nil {
				return time.Duration(seconds) * time.Second, nil
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("%q is neither a number of seconds nor a duration", s)
			}
			return d, nil
		}
		return data, nil
	}
}
