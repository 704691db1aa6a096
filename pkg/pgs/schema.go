package pgs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
)

// schemaFor generates (and caches) a JSON Schema for T, repurposing
// invopop/jsonschema from the teacher's API-doc generation role to
// runtime PGS value validation: a corrupt or hand-edited object-store
// value is rejected at decode time with a field-level error instead of
// a bare unmarshal failure.
var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[string]*jsonschema.Schema{}
)

func schemaFor[T any](name string) *jsonschema.Schema {
	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()
	if s, ok := schemaCache[name]; ok {
		return s
	}
	r := new(jsonschema.Reflector)
	r.RequiredFromJSONSchemaTags = true
	r.ExpandedStruct = true
	var zero T
	s := r.Reflect(zero)
	schemaCache[name] = s
	return s
}

// DecodeSubsystem validates and decodes a subsystem_ value.
func DecodeSubsystem(raw string) (Subsystem, error) {
	var v Subsystem
	if err := decodeChecked[Subsystem](raw, "Subsystem", &v); err != nil {
		return Subsystem{}, err
	}
	return v, nil
}

// DecodeNamespace validates and decodes a namespace_ value.
func DecodeNamespace(raw string) (Namespace, error) {
	var v Namespace
	if err := decodeChecked[Namespace](raw, "Namespace", &v); err != nil {
		return Namespace{}, err
	}
	return v, nil
}

// DecodeNamespaceQoS validates and decodes a qos_ value.
func DecodeNamespaceQoS(raw string) (NamespaceQoS, error) {
	var v NamespaceQoS
	if err := decodeChecked[NamespaceQoS](raw, "NamespaceQoS", &v); err != nil {
		return NamespaceQoS{}, err
	}
	return v, nil
}

// DecodeHost validates and decodes a host_ value.
func DecodeHost(raw string) (Host, error) {
	var v Host
	if err := decodeChecked[Host](raw, "Host", &v); err != nil {
		return Host{}, err
	}
	return v, nil
}

// DecodeListener validates and decodes a listener_ value.
func DecodeListener(raw string) (Listener, error) {
	var v Listener
	if err := decodeChecked[Listener](raw, "Listener", &v); err != nil {
		return Listener{}, err
	}
	return v, nil
}

// decodeChecked unmarshals raw into out and confirms every field the
// schema marks required is present and non-empty, reporting the first
// violation by name rather than a generic unmarshal error.
func decodeChecked[T any](raw string, name string, out *T) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: decode %s value: %w", gwerrors.ErrValidation, name, err)
	}

	schema := schemaFor[T](name)
	asMap := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &asMap); err != nil {
		return fmt.Errorf("%w: decode %s value as map: %w", gwerrors.ErrValidation, name, err)
	}
	for _, required := range schema.Required {
		jsonName := strings.ToLower(required)
		if v, ok := asMap[jsonName]; !ok || v == nil || v == "" {
			return fmt.Errorf("%w: %s missing required field %q", gwerrors.ErrValidation, name, jsonName)
		}
	}
	return nil
}
