package modeld

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load modeld server config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *ModeldConfig, error:
//
//	When loading success, returns `(*ModeldConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadModeldConfig(filepath string) (*ModeldConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *ModeldConfig, err error) {
	var _out *ModeldConfigMarshall
	err = yaml.Unmarshal(conf, &_out)
	if err != nil {
		return nil, err
	}
	out = TrySeal(_out)
	return out, nil
}
