package cachestore

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	c "github.com/unkn0wn-root/offcache/codec"
)

// Protobuf encodes a Record in protobuf wire format without generated code.
// The message layout is
//
//	message Record {
//	  string url = 1;
//	  int64 status = 2;
//	  string status_text = 3;
//	  repeated Header header = 4;  // {string name = 1; repeated string values = 2;}
//	  bytes body = 5;
//	  string type = 6;
//	  bool redirected = 7;
//	  repeated Vary vary = 8;      // {string name = 1; string value = 2;}
//	}
//
// Header names and vary keys are written sorted, so equal records encode to
// equal bytes. Unknown fields are skipped on decode.
type Protobuf struct{}

var _ c.Codec[Record] = Protobuf{}

func (Protobuf) Name() string { return "protobuf" }

const (
	fieldURL protowire.Number = iota + 1
	fieldStatus
	fieldStatusText
	fieldHeader
	fieldBody
	fieldType
	fieldRedirected
	fieldVary
)

func (Protobuf) Encode(r Record) ([]byte, error) {
	var b []byte
	b = appendString(b, fieldURL, r.URL)
	if r.Status != 0 {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.Status)))
	}
	b = appendString(b, fieldStatusText, r.StatusText)

	for _, name := range slices.Sorted(maps.Keys(r.Header)) {
		var m []byte
		m = appendString(m, 1, name)
		for _, v := range r.Header[name] {
			m = protowire.AppendTag(m, 2, protowire.BytesType)
			m = protowire.AppendString(m, v)
		}
		b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}

	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	b = appendString(b, fieldType, r.Type)
	if r.Redirected {
		b = protowire.AppendTag(b, fieldRedirected, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}

	for _, name := range slices.Sorted(maps.Keys(r.Vary)) {
		var m []byte
		m = appendString(m, 1, name)
		m = appendString(m, 2, r.Vary[name])
		b = protowire.AppendTag(b, fieldVary, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b, nil
}

var errWireType = errors.New("protobuf: unexpected wire type")

func (Protobuf) Decode(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldStatus && typ == protowire.VarintType,
			num == fieldRedirected && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldStatus {
				r.Status = int(int64(v))
			} else {
				r.Redirected = protowire.DecodeBool(v)
			}

		case typ == protowire.BytesType && num >= fieldURL && num <= fieldVary && num != fieldStatus && num != fieldRedirected:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Record{}, protowire.ParseError(n)
			}
			b = b[n:]
			if err := r.setBytes(num, v); err != nil {
				return Record{}, err
			}

		case num >= fieldURL && num <= fieldVary:
			return Record{}, fmt.Errorf("%w: field %d has type %d", errWireType, num, typ)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func (r *Record) setBytes(num protowire.Number, v []byte) error {
	switch num {
	case fieldURL:
		r.URL = string(v)
	case fieldStatusText:
		r.StatusText = string(v)
	case fieldType:
		r.Type = string(v)
	case fieldBody:
		r.Body = slices.Clone(v)
	case fieldHeader:
		name, values, err := decodePair(v, true)
		if err != nil {
			return err
		}
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header[name] = append(r.Header[name], values...)
	case fieldVary:
		name, values, err := decodePair(v, false)
		if err != nil {
			return err
		}
		if r.Vary == nil {
			r.Vary = make(map[string]string)
		}
		r.Vary[name] = ""
		if len(values) > 0 {
			r.Vary[name] = values[0]
		}
	}
	return nil
}

// decodePair reads a {name = 1; value(s) = 2} submessage.
func decodePair(b []byte, repeated bool) (string, []string, error) {
	var name string
	var values []string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != 1 && num != 2) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num == 1 {
			name = v
		} else if repeated || len(values) == 0 {
			values = append(values, v)
		} else {
			values[0] = v // last one wins
		}
	}
	return name, values, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
