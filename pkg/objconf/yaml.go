package objconf

import (
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/pkg/errors"
)

// yamlDocument is the shape of the convenience YAML config: top-level
// source/destination maps of driver key/value pairs. It is sugar over the
// same declarative contract — exactly one source, exactly one destination
// — not a separate schema.
type yamlDocument struct {
	Source      yamlSection `yaml:"source"`
	Destination yamlSection `yaml:"destination"`
}

type yamlSection struct {
	Driver string            `yaml:"driver"`
	Params map[string]string `yaml:"params"`
}

func (s yamlSection) present() bool {
	return s.Driver != ""
}

// ParseYAML reads the convenience format:
//
//	source:
//	  driver: badger
//	  params:
//	    data-dir: /var/db/src
//	destination:
//	  driver: badger
//	  params:
//	    data-dir: /var/db/dst
func ParseYAML(data []byte) (map[string]Spec, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrap(err, "objconf: parse yaml config")
	}

	specs := make(map[string]Spec)
	if doc.Source.present() {
		specs["source"] = Spec{Driver: doc.Source.Driver, Params: doc.Source.Params}
	}
	if doc.Destination.present() {
		specs["destination"] = Spec{Driver: doc.Destination.Driver, Params: doc.Destination.Params}
	}
	return specs, nil
}
