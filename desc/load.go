package desc

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

var (
	cacheMu    sync.RWMutex
	filesCache = map[protoreflect.FileDescriptor]*FileDescriptor{}
)

// LoadFileDescriptor creates a file descriptor from the given protoreflect
// descriptor, along with all of its dependencies. Results are cached, keyed by
// the identity of the given descriptor, so loading the same file repeatedly
// returns the same *FileDescriptor.
func LoadFileDescriptor(file protoreflect.FileDescriptor) (*FileDescriptor, error) {
	cacheMu.RLock()
	d := filesCache[file]
	cacheMu.RUnlock()
	if d != nil {
		return d, nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	return loadFileDescriptorLocked(file, nil)
}

func loadFileDescriptorLocked(file protoreflect.FileDescriptor, seen []string) (*FileDescriptor, error) {
	if d := filesCache[file]; d != nil {
		return d, nil
	}
	if file.IsPlaceholder() {
		return nil, fmt.Errorf("file %q could not be resolved", file.Path())
	}
	for _, s := range seen {
		if s == file.Path() {
			return nil, fmt.Errorf("cycle in imports involving %q", file.Path())
		}
	}
	seen = append(seen, file.Path())

	imports := file.Imports()
	deps := make([]*FileDescriptor, imports.Len())
	for i := range deps {
		dep, err := loadFileDescriptorLocked(imports.Get(i).FileDescriptor, seen)
		if err != nil {
			return nil, err
		}
		deps[i] = dep
	}
	d, err := CreateFileDescriptor(protodesc.ToFileDescriptorProto(file), deps...)
	if err != nil {
		return nil, err
	}
	filesCache[file] = d
	return d, nil
}

// LoadMessageDescriptor loads the descriptor for the message with the given
// fully-qualified name from the global registry of linked-in files. If the
// message is not known, nil is returned.
func LoadMessageDescriptor(message string) (*MessageDescriptor, error) {
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(protoreflect.FullName(message))
	if err == protoregistry.NotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is a %T, not a message", message, d)
	}
	return LoadMessageDescriptorForDescriptor(md)
}

// LoadMessageDescriptorForMessage loads the descriptor for the type of the
// given message.
func LoadMessageDescriptorForMessage(message proto.Message) (*MessageDescriptor, error) {
	return LoadMessageDescriptorForDescriptor(message.ProtoReflect().Descriptor())
}

// LoadMessageDescriptorForDescriptor converts the given protoreflect message
// descriptor, loading its entire file.
func LoadMessageDescriptorForDescriptor(md protoreflect.MessageDescriptor) (*MessageDescriptor, error) {
	fd, err := LoadFileDescriptor(md.ParentFile())
	if err != nil {
		return nil, err
	}
	ret := fd.FindMessage(string(md.FullName()))
	if ret == nil {
		return nil, fmt.Errorf("file %q did not contain message %s", fd.GetName(), md.FullName())
	}
	return ret, nil
}

// LoadEnumDescriptorForDescriptor converts the given protoreflect enum
// descriptor, loading its entire file.
func LoadEnumDescriptorForDescriptor(ed protoreflect.EnumDescriptor) (*EnumDescriptor, error) {
	fd, err := LoadFileDescriptor(ed.ParentFile())
	if err != nil {
		return nil, err
	}
	ret := fd.FindEnum(string(ed.FullName()))
	if ret == nil {
		return nil, fmt.Errorf("file %q did not contain enum %s", fd.GetName(), ed.FullName())
	}
	return ret, nil
}

// LoadFieldDescriptorForExtension loads the descriptor for the given extension.
func LoadFieldDescriptorForExtension(ext protoreflect.ExtensionType) (*FieldDescriptor, error) {
	xd := ext.TypeDescriptor()
	fd, err := LoadFileDescriptor(xd.ParentFile())
	if err != nil {
		return nil, err
	}
	ret := fd.FindExtension(string(xd.FullName()))
	if ret == nil {
		return nil, fmt.Errorf("file %q did not contain extension %s", fd.GetName(), xd.FullName())
	}
	return ret, nil
}
