package types

// ParseSessionType maps a raw payload value to a SessionType. Non-string
// values and unknown names are rejected.
func ParseSessionType(v interface{}) (SessionType, error) {
	s, ok := v.(string)
	if !ok {
		return SessionTypeNone, ErrInvalidSessionType
	}
	for _, st := range SessionTypes {
		if SessionType(s) == st {
			return st, nil
		}
	}
	return SessionTypeNone, ErrInvalidSessionType
}

// String returns the field as a string. Non-string values count as absent.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Number returns the field as a float64. JSON numbers decode to float64;
// anything else counts as absent.
func (p Payload) Number(key string) (float64, bool) {
	switch n := p[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Bool reports whether the field is the JSON literal true.
func (p Payload) Bool(key string) bool {
	b, ok := p[key].(bool)
	return ok && b
}

// Has reports whether the field is present and not null.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Clone returns a shallow copy that can be extended without mutating p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}
