package stdlib

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	"github.com/hashmap-kz/jkube/internal/lang/value"
)

func (b *Builder) installHash(set func(string, *value.Function)) {
	in := b.in

	digest := func(name string, sum func([]byte) []byte) {
		set(name, builtin(in, []string{"s"}, func(args []*value.Thunk) (value.Value, error) {
			v, err := args[0].Force()
			if err != nil {
				return nil, err
			}
			s, err := asString(name, 0, v)
			if err != nil {
				return nil, err
			}
			return value.NewString(hex.EncodeToString(sum([]byte(s)))), nil
		}))
	}

	digest("md5", func(b []byte) []byte { h := md5.Sum(b); return h[:] })
	digest("sha1", func(b []byte) []byte { h := sha1.Sum(b); return h[:] })
	digest("sha256", func(b []byte) []byte { h := sha256.Sum256(b); return h[:] })
	digest("sha512", func(b []byte) []byte { h := sha512.Sum512(b); return h[:] })
	digest("sha3", func(b []byte) []byte { h := sha3.Sum512(b); return h[:] })

	set("base64", builtin(in, []string{"input"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		var raw []byte
		switch x := v.(type) {
		case *value.String:
			raw = []byte(x.Text())
		case *value.BytesArray:
			raw = x.Bytes
		default:
			return nil, argError("base64", 0, "a string or byte array", v)
		}
		return value.NewString(base64.StdEncoding.EncodeToString(raw)), nil
	}))

	set("base64Decode", builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("base64Decode", 0, v)
		if err != nil {
			return nil, err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return value.NewString(string(raw)), nil
	}))

	set("base64DecodeBytes", builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("base64DecodeBytes", 0, v)
		if err != nil {
			return nil, err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return &value.BytesArray{Bytes: raw}, nil
	}))

	set("encodeUTF8", builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("encodeUTF8", 0, v)
		if err != nil {
			return nil, err
		}
		return &value.BytesArray{Bytes: []byte(s)}, nil
	}))

	set("decodeUTF8", builtin(in, []string{"arr"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		ba, ok := v.(*value.BytesArray)
		if !ok {
			arr, err := asArray("decodeUTF8", 0, v)
			if err != nil {
				return nil, err
			}
			raw := make([]byte, arr.Len())
			for i := range raw {
				el, err := arr.Get(i)
				if err != nil {
					return nil, err
				}
				n, err := asNumber("decodeUTF8", 0, el)
				if err != nil {
					return nil, err
				}
				raw[i] = byte(n)
			}
			if !utf8.Valid(raw) {
				return nil, argError("decodeUTF8", 0, "valid UTF-8 bytes", v)
			}
			return value.NewString(string(raw)), nil
		}
		if !utf8.Valid(ba.Bytes) {
			return nil, argError("decodeUTF8", 0, "valid UTF-8 bytes", v)
		}
		return value.NewString(string(ba.Bytes)), nil
	}))
}
