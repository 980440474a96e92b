package dynamic

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jhump/protoruntime/desc"
)

const googleApisDomain = "type.googleapis.com"

// AnyResolver resolves the type URLs found in google.protobuf.Any messages to
// message types. The JSON and text codecs use a resolver to expand the
// contents of Any messages.
type AnyResolver interface {
	FindMessageByURL(url string) (*desc.MessageDescriptor, error)
}

// TypeRegistry is a registry of message types, keyed by type URL, for use
// with google.protobuf.Any messages. Only the last path element of a URL, the
// fully-qualified name of the message, is used for lookups, so any domain is
// accepted.
//
// Registrations are never removed. A registry is safe for concurrent use, and
// lookups never wait on registrations of unrelated types.
type TypeRegistry struct {
	includeDefault bool
	types          sync.Map // fully-qualified name -> *desc.MessageDescriptor
	loads          singleflight.Group
}

var _ AnyResolver = (*TypeRegistry)(nil)

// DefaultTypeRegistry is the process-wide registry used when codec options do
// not name one. It also resolves every message type linked into the program.
var DefaultTypeRegistry = NewTypeRegistryWithDefaults()

// NewTypeRegistry returns a new, empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{}
}

// NewTypeRegistryWithDefaults returns a registry that, in addition to types
// explicitly registered, resolves message types linked into the program (those
// in protoregistry.GlobalFiles).
func NewTypeRegistryWithDefaults() *TypeRegistry {
	return &TypeRegistry{includeDefault: true}
}

// RegisterMessage adds the given message types to the registry. An error is
// returned if a different message with the same name, from a different file,
// has already been registered.
func (r *TypeRegistry) RegisterMessage(mds ...*desc.MessageDescriptor) error {
	for _, md := range mds {
		existing, loaded := r.types.LoadOrStore(md.GetFullyQualifiedName(), md)
		if !loaded {
			continue
		}
		if emd := existing.(*desc.MessageDescriptor); emd != md && emd.GetFile().GetName() != md.GetFile().GetName() {
			return fmt.Errorf("message %s already registered from file %q", md.GetFullyQualifiedName(), emd.GetFile().GetName())
		}
	}
	return nil
}

// RegisterFile adds all message types in the given file to the registry,
// including nested messages.
func (r *TypeRegistry) RegisterFile(fd *desc.FileDescriptor) error {
	var mds []*desc.MessageDescriptor
	for _, md := range fd.GetMessageTypes() {
		mds = appendNestedMessages(mds, md)
	}
	return r.RegisterMessage(mds...)
}

func appendNestedMessages(mds []*desc.MessageDescriptor, md *desc.MessageDescriptor) []*desc.MessageDescriptor {
	if md.IsMapEntry() {
		return mds
	}
	mds = append(mds, md)
	for _, nmd := range md.GetNestedMessageTypes() {
		mds = appendNestedMessages(mds, nmd)
	}
	return mds
}

// FindMessageByURL returns the message type for the given type URL. If the
// type is not known, an error wrapping ErrUnresolvedAnyType is returned.
func (r *TypeRegistry) FindMessageByURL(url string) (*desc.MessageDescriptor, error) {
	name := url
	if pos := strings.LastIndexByte(url, '/'); pos >= 0 {
		name = url[pos+1:]
	}
	if name == "" {
		return nil, fmt.Errorf("%w: invalid type URL %q", ErrUnresolvedAnyType, url)
	}
	md, err := r.FindMessageByName(name)
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedAnyType, url)
	}
	return md, nil
}

// FindMessageByName returns the message type with the given fully-qualified
// name, or nil if it is not known.
func (r *TypeRegistry) FindMessageByName(name string) (*desc.MessageDescriptor, error) {
	if md, ok := r.types.Load(name); ok {
		return md.(*desc.MessageDescriptor), nil
	}
	if !r.includeDefault {
		return nil, nil
	}
	// concurrent requests for the same type share one conversion
	v, err, _ := r.loads.Do(name, func() (interface{}, error) {
		md, err := desc.LoadMessageDescriptor(name)
		if err != nil || md == nil {
			return md, err
		}
		actual, _ := r.types.LoadOrStore(name, md)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	md, _ := v.(*desc.MessageDescriptor)
	return md, nil
}

// URLForType returns the type URL used for the given message type when
// packing it into an Any.
func URLForType(md *desc.MessageDescriptor) string {
	return googleApisDomain + "/" + md.GetFullyQualifiedName()
}

func resolverOrDefault(res AnyResolver) AnyResolver {
	if res == nil {
		return DefaultTypeRegistry
	}
	return res
}
