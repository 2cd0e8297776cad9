package splode

import (
	"crypto/sha1"
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"reflect"
	"sort"
)

// Fingerprinter is the interface describing a payload that provides its own
// representation for content hashing. A type that implements Fingerprinter
// has complete control over the representation of its data and may therefore
// contain private fields, channels, or functions, which are otherwise not
// hashable.
//
// Since fingerprints are stored in provenance records that outlive a process,
// implementations should keep their hashing stable as the software evolves.
type Fingerprinter interface {
	Fingerprint(h hash.Hash) error
}

// FingerprintPayload returns the content fingerprint of the given payload.
//
// If the payload implements Fingerprinter, the fingerprint is computed by its
// Fingerprint method; otherwise a reflection-based algorithm hashes the
// payload's exported fields, irrespective of their declaration order.
//
// Two payloads with the same fingerprint are considered equal by the engine:
// re-exporting an entity whose fingerprint is unchanged overwrites the
// container with identical content.
func FingerprintPayload(p Payload) (Fingerprint, error) {
	h := newPayloadHash(p)
	if x, ok := p.(Fingerprinter); ok {
		if err := x.Fingerprint(h); err != nil {
			return Fingerprint{}, err
		}
	} else {
		if err := reflectiveFingerprint(h, reflect.ValueOf(p)); err != nil {
			return Fingerprint{}, err
		}
	}
	return Fingerprint(h.Sum(nil)), nil
}

// MustFingerprint is like FingerprintPayload but panics on un-hashable
// payloads. Use it with payload types known to be hashable.
func MustFingerprint(p Payload) Fingerprint {
	f, err := FingerprintPayload(p)
	if err != nil {
		panic(fmt.Sprintf("splode: un-hashable payload (type %T): %v", p, err))
	}
	return f
}

// newPayloadHash seeds a hash with a type preamble so that two payload types
// with identical field values hash differently.
func newPayloadHash(p any) hash.Hash {
	h := sha1.New()
	t := reflect.TypeOf(p)
	h.Write([]byte(t.PkgPath()))
	h.Write([]byte(t.Name()))
	return h
}

func reflectiveFingerprint(digest hash.Hash, payload reflect.Value) error {
	if payload.Kind() != reflect.Struct {
		panic("splode: reflection-based fingerprint supports only structs; got " + payload.Kind().String())
	}

	fields := reflect.VisibleFields(payload.Type())
	// Sort by name so the fingerprint is independent of declaration order.
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})

	for _, field := range fields {
		if !field.IsExported() {
			continue
		}
		if field.Name == "PayloadBase" && field.Type == reflect.TypeOf(PayloadBase{}) {
			continue
		}

		// The field name participates so renames change the fingerprint.
		digest.Write([]byte(field.Name))

		value := payload.FieldByIndex(field.Index)

		if x, ok := value.Interface().(Fingerprinter); ok {
			if err := x.Fingerprint(digest); err != nil {
				return fmt.Errorf("fingerprinter field %s: %w", field.Name, err)
			}
			continue
		}
		if x, ok := value.Interface().(encoding.BinaryMarshaler); ok {
			b, err := x.MarshalBinary()
			if err != nil {
				return fmt.Errorf("binary field %s: %w", field.Name, err)
			}
			digest.Write(b)
			continue
		}

		if value.Kind() == reflect.Interface {
			if value.IsNil() {
				// A nil interface has no attached type to hash, so it is skipped.
				continue
			}
			value = value.Elem()
		}
		if value.Kind() == reflect.Ptr {
			if value.IsNil() {
				// A nil pointer hashes as the zero value of its element type, the
				// same as a pointer to a zero value.
				value = reflect.New(value.Type().Elem()).Elem()
			} else {
				value = value.Elem()
			}
		}

		switch value.Kind() {
		case reflect.Struct:
			if err := reflectiveFingerprint(digest, value); err != nil {
				return fmt.Errorf("struct field %s: %w", field.Name, err)
			}
		case reflect.String:
			digest.Write([]byte(value.String()))
		case reflect.Int:
			// int is architecture-dependent; hash as varint of int64.
			buf := make([]byte, binary.MaxVarintLen64)
			n := binary.PutVarint(buf, value.Int())
			digest.Write(buf[:n])
		case reflect.Uint:
			buf := make([]byte, binary.MaxVarintLen64)
			n := binary.PutUvarint(buf, value.Uint())
			digest.Write(buf[:n])
		case reflect.Bool, reflect.Float32, reflect.Float64,
			reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if err := binary.Write(digest, binary.BigEndian, value.Interface()); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		case reflect.Array, reflect.Slice:
			switch value.Type().Elem().Kind() {
			case reflect.Int:
				buf := make([]byte, binary.MaxVarintLen64)
				for i := 0; i < value.Len(); i++ {
					n := binary.PutVarint(buf, value.Index(i).Int())
					digest.Write(buf[:n])
				}
			case reflect.Uint:
				buf := make([]byte, binary.MaxVarintLen64)
				for i := 0; i < value.Len(); i++ {
					n := binary.PutUvarint(buf, value.Index(i).Uint())
					digest.Write(buf[:n])
				}
			case reflect.Bool, reflect.Float32, reflect.Float64,
				reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				if err := binary.Write(digest, binary.BigEndian, value.Interface()); err != nil {
					return fmt.Errorf("slice field %s: %w", field.Name, err)
				}
			case reflect.String:
				for i := 0; i < value.Len(); i++ {
					digest.Write([]byte(value.Index(i).String()))
				}
			default:
				return fmt.Errorf("field %s: unsupported slice of %v", field.Name, value.Type().Elem())
			}
		default:
			return fmt.Errorf("field %s: unsupported %s %v", field.Name, value.Kind(), value.Type())
		}
	}

	return nil
}

// A Fingerprint is a consistent content hash over an entity's payload. It is
// independent of the entity's name, identity, and container path, so it
// detects content changes across renames.
type Fingerprint digestValue

func (f Fingerprint) MarshalText() ([]byte, error)     { return digestValue(f).MarshalText() }
func (f *Fingerprint) UnmarshalText(text []byte) error { return (*digestValue)(f).UnmarshalText(text) }
func (f Fingerprint) String() string                   { return "payload(" + digestValue(f).String() + ")" }
func (f Fingerprint) IsZero() bool                     { return digestValue(f).IsZero() }

// A ContainerHash is a consistent content hash over an entire container: its
// member identities, their payload fingerprints, and the intra-unit edges.
// Two containers with the same ContainerHash hold the same exported unit.
type ContainerHash digestValue

func (h ContainerHash) MarshalText() ([]byte, error) { return digestValue(h).MarshalText() }
func (h *ContainerHash) UnmarshalText(text []byte) error {
	return (*digestValue)(h).UnmarshalText(text)
}
func (h ContainerHash) String() string { return "container(" + digestValue(h).String() + ")" }
func (h ContainerHash) IsZero() bool   { return digestValue(h).IsZero() }

// A DocumentHash is a consistent hash over the full set of exported
// containers of one composite document. It changes whenever any container's
// content or the set of container paths changes.
type DocumentHash digestValue

func (h DocumentHash) MarshalText() ([]byte, error) { return digestValue(h).MarshalText() }
func (h *DocumentHash) UnmarshalText(text []byte) error {
	return (*digestValue)(h).UnmarshalText(text)
}
func (h DocumentHash) String() string { return "document(" + digestValue(h).String() + ")" }
func (h DocumentHash) IsZero() bool   { return digestValue(h).IsZero() }

// HashContainers digests the given path-to-hash mapping into a DocumentHash.
// Paths are visited in lexicographic order so the result is independent of
// map iteration.
func HashContainers(containers map[string]ContainerHash) DocumentHash {
	paths := make([]string, 0, len(containers))
	for p := range containers {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha1.New()
	for _, p := range paths {
		h.Write([]byte(p))
		x := containers[p]
		h.Write(x[:])
	}
	return DocumentHash(h.Sum(nil))
}

// digestValue is the hash primitive serving as the base for the strongly
// typed hashes above.
type digestValue [sha1.Size]byte

func (h digestValue) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(text, h[:])
	return text, nil
}

func (h *digestValue) UnmarshalText(text []byte) error {
	n, err := hex.Decode(h[:], text)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	if n != len(h) {
		return fmt.Errorf("not enough bytes: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

func (h digestValue) String() string {
	return hex.EncodeToString(h[:])
}

func (h digestValue) IsZero() bool {
	return h == digestValue{}
}
