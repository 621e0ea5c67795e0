package entities

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Variant is a concrete member of a tagged family.
type Variant interface {
	// VariantType returns the discriminator emitted in the "type" field.
	VariantType() string
	// Validate checks field ranges and returns an ErrInvalidConfiguration wrap on failure.
	Validate() error
}

// Registry maps discriminator values of one family to constructors of its concrete variants.
type Registry[T Variant] struct {
	family   string
	baseType string
	variants map[string]func() T
}

// NewRegistry creates an empty registry. baseType is the abstract tag of the family and is
// never decodable.
func NewRegistry[T Variant](family, baseType string) *Registry[T] {
	return &Registry[T]{
		family:   family,
		baseType: baseType,
		variants: make(map[string]func() T),
	}
}

// Register binds a discriminator to a constructor returning a fresh, default-populated
// pointer to the variant.
func (r *Registry[T]) Register(variantType string, newVariant func() T) {
	if variantType == r.baseType {
		panic(fmt.Sprintf("%s: cannot register abstract type %q", r.family, variantType))
	}
	if _, exists := r.variants[variantType]; exists {
		panic(fmt.Sprintf("%s: type %q registered twice", r.family, variantType))
	}
	r.variants[variantType] = newVariant
}

// Types returns the registered discriminators in sorted order.
func (r *Registry[T]) Types() []string {
	types := make([]string, 0, len(r.variants))
	for t := range r.variants {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Has reports whether variantType is a concrete member of the family.
func (r *Registry[T]) Has(variantType string) bool {
	_, ok := r.variants[variantType]
	return ok
}

// Decode resolves the "type" field of data to a concrete variant, decodes the remaining
// payload into it and validates it.
func (r *Registry[T]) Decode(data []byte) (T, error) {
	var zero T

	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return zero, fmt.Errorf("invalid %s payload: %w", r.family, err)
	}
	if envelope.Type == nil {
		return zero, fmt.Errorf("%w: %s payload has no type", ErrUnknownVariant, r.family)
	}

	newVariant, ok := r.variants[*envelope.Type]
	if !ok {
		return zero, fmt.Errorf("%w: %s type %q", ErrUnknownVariant, r.family, *envelope.Type)
	}

	v := newVariant()
	if err := json.Unmarshal(data, v); err != nil {
		return zero, fmt.Errorf("invalid %s payload: %w", *envelope.Type, err)
	}
	if err := v.Validate(); err != nil {
		return zero, err
	}
	return v, nil
}

// MarshalTagged encodes v as a JSON object and sets its "type" field to variantType.
// v must encode to an object; callers pass a method-less alias of the variant struct.
func MarshalTagged(variantType string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%s does not encode to an object: %w", variantType, err)
	}

	tag, err := json.Marshal(variantType)
	if err != nil {
		return nil, err
	}
	fields["type"] = tag

	return json.Marshal(fields)
}

// Build validates a variant constructed in code and returns it unchanged.
func Build[T Variant](v T) (T, error) {
	if err := v.Validate(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
