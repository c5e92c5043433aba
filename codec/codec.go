// Package codec selects the JSON encoder used for HTTP responses and catalog
// snapshots.
package codec

import (
	"encoding/json"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"
)

// Codec encodes and decodes values. Implementations must be safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// GoJSON is backed by github.com/goccy/go-json.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
func (GoJSON) Name() string                       { return "go-json" }

// JSON is backed by encoding/json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

// ByName returns a built-in codec by its configuration name. The empty name
// selects Default.
func ByName(name string) (Codec, bool) {
	switch name {
	case "":
		return Default, true
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Encode writes v to w followed by a newline. A nil codec means Default.
func Encode(w io.Writer, c Codec, v any) error {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec %s marshal: %w", c.Name(), err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// Decode reads all of r and unmarshals it into v. A nil codec means Default.
func Decode(r io.Reader, c Codec, v any) error {
	if c == nil {
		c = Default
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := c.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec %s unmarshal: %w", c.Name(), err)
	}
	return nil
}
