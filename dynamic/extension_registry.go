package dynamic

import (
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/jhump/protoruntime/desc"
)

// ExtensionRegistry is a registry of known extension fields. It is keyed by
// the full name of the extended message and the extension's field number, and
// also indexes extensions by their fully-qualified name. Codecs consult a
// registry to recognize extensions in their input.
//
// A zero value registry is empty and ready to use. A nil *ExtensionRegistry
// is also valid and behaves as an empty registry for lookups. Registries are
// safe for concurrent use.
type ExtensionRegistry struct {
	includeDefault bool
	mu             sync.RWMutex
	exts           map[string]map[int32]*desc.FieldDescriptor
	byName         map[string]*desc.FieldDescriptor
}

// NewExtensionRegistry returns a new, empty registry.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{}
}

// NewExtensionRegistryWithDefaults returns a registry that, in addition to
// extensions explicitly added, also recognizes every extension linked into the
// program (those in protoregistry.GlobalTypes).
func NewExtensionRegistryWithDefaults() *ExtensionRegistry {
	return &ExtensionRegistry{includeDefault: true}
}

// Union returns a new registry that contains the extensions of all of the
// given registries. The given registries are not modified. Conflicting
// definitions, where two different extensions of the same message use the
// same number, result in an error.
func Union(regs ...*ExtensionRegistry) (*ExtensionRegistry, error) {
	ret := NewExtensionRegistry()
	for _, r := range regs {
		if r == nil {
			continue
		}
		r.mu.RLock()
		ret.includeDefault = ret.includeDefault || r.includeDefault
		var exts []*desc.FieldDescriptor
		for _, m := range r.exts {
			for _, fd := range m {
				exts = append(exts, fd)
			}
		}
		r.mu.RUnlock()
		if err := ret.AddExtension(exts...); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// AddExtension adds the given extensions to the registry. It returns an error
// if any of the given fields is not an extension, uses a number outside the
// extended message's extension ranges or claimed by a regular field of that
// message, or conflicts with a different extension already in the registry.
// If an error is returned, nothing is added.
func (r *ExtensionRegistry) AddExtension(exts ...*desc.FieldDescriptor) error {
	for _, ext := range exts {
		if err := checkExtension(ext); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		if err := r.checkConflictLocked(ext); err != nil {
			return err
		}
	}
	for _, ext := range exts {
		r.putExtensionLocked(ext)
	}
	return nil
}

func checkExtension(ext *desc.FieldDescriptor) error {
	if !ext.IsExtension() {
		return fmt.Errorf("given field is not an extension: %s", ext.GetFullyQualifiedName())
	}
	owner := ext.GetOwner()
	if !owner.IsExtension(ext.GetNumber()) {
		return fmt.Errorf("given field, %s, has a tag number, %d, that is outside extendable range of %s", ext.GetFullyQualifiedName(), ext.GetNumber(), owner.GetFullyQualifiedName())
	}
	if fld := owner.FindFieldByNumber(ext.GetNumber()); fld != nil {
		return fmt.Errorf("given field, %s, has a tag number, %d, that is already used by field %s", ext.GetFullyQualifiedName(), ext.GetNumber(), fld.GetFullyQualifiedName())
	}
	return nil
}

func (r *ExtensionRegistry) checkConflictLocked(ext *desc.FieldDescriptor) error {
	existing := r.exts[ext.GetOwner().GetFullyQualifiedName()][ext.GetNumber()]
	if existing != nil && existing.GetFullyQualifiedName() != ext.GetFullyQualifiedName() {
		return fmt.Errorf("extensions %s and %s both use tag number %d of %s", existing.GetFullyQualifiedName(), ext.GetFullyQualifiedName(), ext.GetNumber(), ext.GetOwner().GetFullyQualifiedName())
	}
	return nil
}

// AddExtensionsFromFile adds all extensions defined in the given file,
// including those nested inside messages.
func (r *ExtensionRegistry) AddExtensionsFromFile(fd *desc.FileDescriptor) error {
	exts := fd.GetExtensions()
	for _, msg := range fd.GetMessageTypes() {
		exts = appendNestedExtensions(exts, msg)
	}
	return r.AddExtension(exts...)
}

func appendNestedExtensions(exts []*desc.FieldDescriptor, md *desc.MessageDescriptor) []*desc.FieldDescriptor {
	exts = append(exts, md.GetNestedExtensions()...)
	for _, msg := range md.GetNestedMessageTypes() {
		exts = appendNestedExtensions(exts, msg)
	}
	return exts
}

func (r *ExtensionRegistry) putExtensionLocked(fd *desc.FieldDescriptor) {
	if r.exts == nil {
		r.exts = map[string]map[int32]*desc.FieldDescriptor{}
		r.byName = map[string]*desc.FieldDescriptor{}
	}
	msgName := fd.GetOwner().GetFullyQualifiedName()
	m := r.exts[msgName]
	if m == nil {
		m = map[int32]*desc.FieldDescriptor{}
		r.exts[msgName] = m
	}
	m[fd.GetNumber()] = fd
	r.byName[fd.GetFullyQualifiedName()] = fd
}

// FindExtension returns the extension of the given message with the given
// number, or nil if there is none.
func (r *ExtensionRegistry) FindExtension(messageName string, tagNumber int32) *desc.FieldDescriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fd := r.exts[messageName][tagNumber]
	r.mu.RUnlock()
	if fd == nil && r.includeDefault {
		xt, err := protoregistry.GlobalTypes.FindExtensionByNumber(protoreflect.FullName(messageName), protoreflect.FieldNumber(tagNumber))
		if err == nil {
			fd, _ = desc.LoadFieldDescriptorForExtension(xt)
		}
	}
	return fd
}

// FindExtensionByName returns the extension of the given message with the
// given fully-qualified name, or nil if there is none. For extensions that
// hold messages in a MessageSet, the name of the message type may be used
// instead of the name of the extension.
func (r *ExtensionRegistry) FindExtensionByName(messageName string, fieldName string) *desc.FieldDescriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fd := r.byName[fieldName]
	if fd == nil {
		fd = r.byName[fieldName+".message_set_extension"]
	}
	r.mu.RUnlock()
	if fd == nil && r.includeDefault {
		xt, err := protoregistry.GlobalTypes.FindExtensionByName(protoreflect.FullName(fieldName))
		if err == nil {
			fd, _ = desc.LoadFieldDescriptorForExtension(xt)
		}
	}
	if fd == nil || fd.GetOwner().GetFullyQualifiedName() != messageName {
		return nil
	}
	return fd
}

// AllExtensionsForType returns all known extensions of the given message,
// sorted by field number.
func (r *ExtensionRegistry) AllExtensionsForType(messageName string) []*desc.FieldDescriptor {
	if r == nil {
		return []*desc.FieldDescriptor(nil)
	}
	r.mu.RLock()
	flds := r.exts[messageName]
	ret := make([]*desc.FieldDescriptor, 0, len(flds))
	for _, ext := range flds {
		ret = append(ret, ext)
	}
	r.mu.RUnlock()

	if r.includeDefault {
		protoregistry.GlobalTypes.RangeExtensionsByMessage(protoreflect.FullName(messageName), func(xt protoreflect.ExtensionType) bool {
			if _, ok := flds[int32(xt.TypeDescriptor().Number())]; ok {
				// skip default extension and use the one explicitly registered instead
				return true
			}
			if fd, err := desc.LoadFieldDescriptorForExtension(xt); err == nil {
				ret = append(ret, fd)
			}
			return true
		})
	}

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].GetNumber() < ret[j].GetNumber()
	})
	return ret
}
