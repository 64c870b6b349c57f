package objconf

import (
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/arkdb/objcopy/pkg/objerr"
	"github.com/arkdb/objcopy/pkg/objlog"
)

// Format selects how ConfigFile is parsed.
type Format string

const (
	FormatAuto        Format = "auto"
	FormatDeclarative Format = "declarative"
	FormatYAML        Format = "yaml"
)

// LoadOptions mirrors the CLI's configuration-related flags.
type LoadOptions struct {
	// ConfigFile is the optional positional declarative/YAML config.
	ConfigFile   string
	ConfigFormat Format

	// SourceZopeConf/SourceDB select a side from a host-application config.
	SourceZopeConf string
	SourceDB       string // defaults to "main"

	DestZopeConf string
	DestDB       string // defaults to "main"
}

// Load resolves opts into an opened (source, destination, closables)
// triple. At least one of the three configuration inputs must supply each
// side; supplying a side from more than one input is ErrDuplicateSpecification.
func Load(opts LoadOptions) (*Result, error) {
	sourceDB := opts.SourceDB
	if sourceDB == "" {
		sourceDB = "main"
	}
	destDB := opts.DestDB
	if destDB == "" {
		destDB = "main"
	}

	var sourceSpec, destSpec *Spec

	if opts.ConfigFile != "" {
		specs, err := parseConfigFile(opts.ConfigFile, opts.ConfigFormat)
		if err != nil {
			return nil, err
		}
		if s, ok := specs["source"]; ok {
			sourceSpec = &s
		}
		if d, ok := specs["destination"]; ok {
			destSpec = &d
		}
	}

	if opts.SourceZopeConf != "" {
		spec, err := extractHostSpec(opts.SourceZopeConf, sourceDB)
		if err != nil {
			return nil, err
		}
		if sourceSpec != nil {
			return nil, pkgerrors.WithStack(objerr.ErrDuplicateSpecification)
		}
		sourceSpec = spec
	}

	if opts.DestZopeConf != "" {
		spec, err := extractHostSpec(opts.DestZopeConf, destDB)
		if err != nil {
			return nil, err
		}
		if destSpec != nil {
			return nil, pkgerrors.WithStack(objerr.ErrDuplicateSpecification)
		}
		destSpec = spec
	}

	if sourceSpec == nil || destSpec == nil {
		return nil, pkgerrors.WithStack(objerr.ErrMissingSpecification)
	}

	result := &Result{}

	src, _, err := openSpec(*sourceSpec)
	if err != nil {
		return nil, err
	}
	result.Source = src
	if c, ok := src.(io.Closer); ok {
		result.Closables = append(result.Closables, c)
	}

	_, dst, err := openSpec(*destSpec)
	if err != nil {
		result.Close()
		return nil, err
	}
	result.Destination = dst
	if c, ok := dst.(io.Closer); ok {
		result.Closables = append(result.Closables, c)
	}

	return result, nil
}

func parseConfigFile(path string, format Format) (map[string]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "objconf: read config file %s", path)
	}

	switch resolveFormat(format, data) {
	case FormatYAML:
		return ParseYAML(data)
	default:
		return ParseDeclarative(data)
	}
}

func resolveFormat(format Format, data []byte) Format {
	if format == FormatDeclarative || format == FormatYAML {
		return format
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "<") || strings.HasPrefix(trimmed, "%") {
		return FormatDeclarative
	}
	return FormatYAML
}

func extractHostSpec(path, dbName string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "objconf: read host config %s", path)
	}
	spec, directives, err := ExtractZodbDB(data, dbName)
	if err != nil {
		return nil, err
	}
	for _, d := range directives {
		objlog.Logger.Debug().Str("directive", d).Msg("hoisted global config directive")
	}
	return &spec, nil
}
