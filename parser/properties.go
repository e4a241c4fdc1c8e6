package parser

import (
	"emperror.dev/errors"
)

// ReadProperties returns every key of a Java properties file. A missing file
// yields an empty map.
func ReadProperties(path string) (map[string]string, error) {
	p, err := loadProperties(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return p.Map(), nil
}

// WriteProperties sets the given keys in a properties file, keeping every
// other key and comment already present.
func WriteProperties(path string, values map[string]string) error {
	p, err := loadProperties(path)
	if err != nil {
		return errors.WithStack(err)
	}
	for k, v := range values {
		if _, _, err := p.Set(k, v); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(writeProperties(path, p))
}
