// Package desc contains the static metadata that describes message types:
// files, messages, fields, oneofs, enums and services. Descriptors are built
// from google.protobuf.FileDescriptorProto messages, either directly or by
// loading them from protoreflect descriptors (including generated code and
// schemas compiled at runtime). Once created, descriptors are immutable and
// safe to share across goroutines.
package desc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Descriptor is the common interface implemented by all descriptor objects.
type Descriptor interface {
	// GetName returns the name of the object described by the descriptor. This will
	// be a base name that does not include enclosing message names or the package name.
	// For file descriptors, this indicates the path and name to the described file.
	GetName() string
	// GetFullyQualifiedName returns the fully-qualified name of the object described by
	// the descriptor. This will include the package name and any enclosing message names.
	// For file descriptors, this returns the path and name to the described file (same as
	// GetName).
	GetFullyQualifiedName() string
	// GetParent returns the enclosing element in a proto source file. If the described
	// object is a top-level object, this returns the file descriptor. Otherwise, it returns
	// the element in which the described object was declared. File descriptors have no
	// parent and return nil.
	GetParent() Descriptor
	// GetFile returns the file descriptor in which this element was declared. File
	// descriptors return themselves.
	GetFile() *FileDescriptor
	// GetOptions returns the options proto containing options for the described element.
	GetOptions() proto.Message
	// AsProto returns the underlying descriptor proto for this descriptor.
	AsProto() proto.Message
}

// FileDescriptor describes a proto source file.
type FileDescriptor struct {
	proto      *descriptorpb.FileDescriptorProto
	symbols    map[string]Descriptor
	deps       []*FileDescriptor
	publicDeps []*FileDescriptor
	messages   []*MessageDescriptor
	enums      []*EnumDescriptor
	extensions []*FieldDescriptor
	services   []*ServiceDescriptor
	isProto3   bool
}

// CreateFileDescriptor instantiates a new file descriptor for the given descriptor proto.
// The file's direct dependencies must be provided. If the given dependencies do not include
// all of the file's dependencies or if the contents of the descriptors are internally
// inconsistent (e.g. contain unresolvable symbols or invalid field numbers) then an error
// is returned.
func CreateFileDescriptor(fd *descriptorpb.FileDescriptorProto, deps ...*FileDescriptor) (*FileDescriptor, error) {
	ret := &FileDescriptor{proto: fd, symbols: map[string]Descriptor{}}
	switch fd.GetSyntax() {
	case "", "proto2":
	case "proto3":
		ret.isProto3 = true
	default:
		return nil, fmt.Errorf("file %q: unsupported syntax %q", fd.GetName(), fd.GetSyntax())
	}
	pkg := fd.GetPackage()

	files := map[string]*FileDescriptor{}
	for _, f := range deps {
		files[f.proto.GetName()] = f
	}
	ret.deps = make([]*FileDescriptor, len(fd.GetDependency()))
	for i, d := range fd.GetDependency() {
		ret.deps[i] = files[d]
		if ret.deps[i] == nil {
			return nil, fmt.Errorf("file %q: given dependencies did not include %q", fd.GetName(), d)
		}
	}
	for _, pd := range fd.GetPublicDependency() {
		if pd < 0 || int(pd) >= len(ret.deps) {
			return nil, fmt.Errorf("file %q: public dependency index %d out of range", fd.GetName(), pd)
		}
		ret.publicDeps = append(ret.publicDeps, ret.deps[pd])
	}

	// populate all tables of child descriptors
	for _, m := range fd.GetMessageType() {
		md, n := createMessageDescriptor(ret, ret, pkg, m, ret.symbols)
		ret.symbols[n] = md
		ret.messages = append(ret.messages, md)
	}
	for _, e := range fd.GetEnumType() {
		ed, n := createEnumDescriptor(ret, ret, pkg, e, ret.symbols)
		ret.symbols[n] = ed
		ret.enums = append(ret.enums, ed)
	}
	for _, ex := range fd.GetExtension() {
		exd, n := createFieldDescriptor(ret, ret, pkg, ex)
		ret.symbols[n] = exd
		ret.extensions = append(ret.extensions, exd)
	}
	for _, s := range fd.GetService() {
		sd, n := createServiceDescriptor(ret, pkg, s, ret.symbols)
		ret.symbols[n] = sd
		ret.services = append(ret.services, sd)
	}

	// now we can resolve all type references
	scopes := []scope{fileScope(ret)}
	for _, md := range ret.messages {
		if err := md.resolve(scopes); err != nil {
			return nil, err
		}
	}
	for _, exd := range ret.extensions {
		if err := exd.resolve(scopes); err != nil {
			return nil, err
		}
	}
	for _, sd := range ret.services {
		if err := sd.resolve(scopes); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// CreateFileDescriptorFromSet creates a descriptor from the given file descriptor set. The
// set's last file will be the returned descriptor. The set's remaining files must comprise
// the full set of transitive dependencies of that last file. This is the same format and
// order used by protoc when emitting a FileDescriptorSet file with an invocation like so:
//
//	protoc --descriptor_set_out=./test.protoset --include_imports -I. test.proto
func CreateFileDescriptorFromSet(fds *descriptorpb.FileDescriptorSet) (*FileDescriptor, error) {
	files := fds.GetFile()
	if len(files) == 0 {
		return nil, errors.New("file descriptor set is empty")
	}
	resolved, err := CreateFileDescriptorsFromSet(fds)
	if err != nil {
		return nil, err
	}
	return resolved[files[len(files)-1].GetName()], nil
}

// CreateFileDescriptorsFromSet creates file descriptors from the given file descriptor set.
// The returned map includes all files in the set, keyed by name. The set must include the
// full set of transitive dependencies for all files therein or else a link error will occur
// and be returned instead of the map.
func CreateFileDescriptorsFromSet(fds *descriptorpb.FileDescriptorSet) (map[string]*FileDescriptor, error) {
	files := map[string]*descriptorpb.FileDescriptorProto{}
	for _, fd := range fds.GetFile() {
		if _, ok := files[fd.GetName()]; ok {
			return nil, fmt.Errorf("file descriptor set contains multiple entries for %q", fd.GetName())
		}
		files[fd.GetName()] = fd
	}
	resolved := map[string]*FileDescriptor{}
	for _, fd := range fds.GetFile() {
		if _, err := createFromSet(fd.GetName(), nil, files, resolved); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// createFromSet creates a descriptor for the given filename. It recursively
// creates descriptors for the given file's dependencies.
func createFromSet(filename string, seen []string, files map[string]*descriptorpb.FileDescriptorProto, resolved map[string]*FileDescriptor) (*FileDescriptor, error) {
	for _, s := range seen {
		if filename == s {
			return nil, fmt.Errorf("cycle in imports: %s", strings.Join(append(seen, filename), " -> "))
		}
	}
	seen = append(seen, filename)

	if d, ok := resolved[filename]; ok {
		return d, nil
	}
	fdp := files[filename]
	if fdp == nil {
		return nil, fmt.Errorf("file descriptor set missing a dependency: %s", filename)
	}
	deps := make([]*FileDescriptor, len(fdp.GetDependency()))
	for i, depName := range fdp.GetDependency() {
		dep, err := createFromSet(depName, seen, files, resolved)
		if err != nil {
			return nil, err
		}
		deps[i] = dep
	}
	d, err := CreateFileDescriptor(fdp, deps...)
	if err != nil {
		return nil, err
	}
	resolved[filename] = d
	return d, nil
}

// GetName returns the name of the file, as it was given to the protoc invocation
// to compile it, possibly including path (relative to a directory in the proto
// import path).
func (fd *FileDescriptor) GetName() string {
	return fd.proto.GetName()
}

// GetFullyQualifiedName returns the name of the file, same as GetName. It is
// present to satisfy the Descriptor interface.
func (fd *FileDescriptor) GetFullyQualifiedName() string {
	return fd.proto.GetName()
}

// GetPackage returns the name of the package declared in the file.
func (fd *FileDescriptor) GetPackage() string {
	return fd.proto.GetPackage()
}

// GetParent always returns nil: files are the root of descriptor hierarchies.
func (fd *FileDescriptor) GetParent() Descriptor {
	return nil
}

// GetFile returns the receiver, which is a file descriptor.
func (fd *FileDescriptor) GetFile() *FileDescriptor {
	return fd
}

func (fd *FileDescriptor) GetOptions() proto.Message {
	return fd.proto.GetOptions()
}

func (fd *FileDescriptor) AsProto() proto.Message {
	return fd.proto
}

// AsFileDescriptorProto returns the underlying descriptor proto.
func (fd *FileDescriptor) AsFileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return fd.proto
}

func (fd *FileDescriptor) String() string {
	return fd.proto.GetName()
}

// IsProto3 returns true if the file declares a syntax of "proto3".
func (fd *FileDescriptor) IsProto3() bool {
	return fd.isProto3
}

// GetDependencies returns all of this file's dependencies.
func (fd *FileDescriptor) GetDependencies() []*FileDescriptor {
	return fd.deps
}

// GetPublicDependencies returns all of this file's public dependencies.
func (fd *FileDescriptor) GetPublicDependencies() []*FileDescriptor {
	return fd.publicDeps
}

// GetMessageTypes returns all top-level messages declared in this file.
func (fd *FileDescriptor) GetMessageTypes() []*MessageDescriptor {
	return fd.messages
}

// GetEnumTypes returns all top-level enums declared in this file.
func (fd *FileDescriptor) GetEnumTypes() []*EnumDescriptor {
	return fd.enums
}

// GetExtensions returns all top-level extensions declared in this file.
func (fd *FileDescriptor) GetExtensions() []*FieldDescriptor {
	return fd.extensions
}

// GetServices returns all services declared in this file.
func (fd *FileDescriptor) GetServices() []*ServiceDescriptor {
	return fd.services
}

// FindSymbol returns the descriptor contained within this file for the
// element with the given fully-qualified symbol name. If no such element
// exists then this method returns nil.
func (fd *FileDescriptor) FindSymbol(symbol string) Descriptor {
	if len(symbol) > 0 && symbol[0] == '.' {
		symbol = symbol[1:]
	}
	return fd.symbols[symbol]
}

// FindMessage finds the message with the given fully-qualified name. If no
// such element exists in this file then nil is returned.
func (fd *FileDescriptor) FindMessage(msgName string) *MessageDescriptor {
	md, _ := fd.FindSymbol(msgName).(*MessageDescriptor)
	return md
}

// FindEnum finds the enum with the given fully-qualified name. If no such
// element exists in this file then nil is returned.
func (fd *FileDescriptor) FindEnum(enumName string) *EnumDescriptor {
	ed, _ := fd.FindSymbol(enumName).(*EnumDescriptor)
	return ed
}

// FindExtension finds the extension field with the given fully-qualified
// name. If no such element exists in this file then nil is returned.
func (fd *FileDescriptor) FindExtension(extName string) *FieldDescriptor {
	exd, _ := fd.FindSymbol(extName).(*FieldDescriptor)
	if exd != nil && !exd.IsExtension() {
		return nil
	}
	return exd
}

// FindService finds the service with the given fully-qualified name. If no
// such element exists in this file then nil is returned.
func (fd *FileDescriptor) FindService(serviceName string) *ServiceDescriptor {
	sd, _ := fd.FindSymbol(serviceName).(*ServiceDescriptor)
	return sd
}

// MessageDescriptor describes a protocol buffer message.
type MessageDescriptor struct {
	proto          *descriptorpb.DescriptorProto
	parent         Descriptor
	file           *FileDescriptor
	fields         []*FieldDescriptor
	fieldsByNumber []*FieldDescriptor
	byNumber       map[int32]*FieldDescriptor
	byName         map[string]*FieldDescriptor
	byJSONName     map[string]*FieldDescriptor
	nested         []*MessageDescriptor
	enums          []*EnumDescriptor
	extensions     []*FieldDescriptor
	oneOfs         []*OneOfDescriptor
	fqn            string
}

func createMessageDescriptor(fd *FileDescriptor, parent Descriptor, enclosing string, md *descriptorpb.DescriptorProto, symbols map[string]Descriptor) (*MessageDescriptor, string) {
	msgName := merge(enclosing, md.GetName())
	ret := &MessageDescriptor{
		proto:      md,
		parent:     parent,
		file:       fd,
		fqn:        msgName,
		byNumber:   map[int32]*FieldDescriptor{},
		byName:     map[string]*FieldDescriptor{},
		byJSONName: map[string]*FieldDescriptor{},
	}
	for _, f := range md.GetField() {
		fld, n := createFieldDescriptor(fd, ret, msgName, f)
		symbols[n] = fld
		ret.fields = append(ret.fields, fld)
		ret.byNumber[fld.GetNumber()] = fld
		ret.byName[fld.GetName()] = fld
		ret.byJSONName[fld.GetJSONName()] = fld
	}
	ret.fieldsByNumber = make([]*FieldDescriptor, len(ret.fields))
	copy(ret.fieldsByNumber, ret.fields)
	sort.Slice(ret.fieldsByNumber, func(i, j int) bool {
		return ret.fieldsByNumber[i].GetNumber() < ret.fieldsByNumber[j].GetNumber()
	})
	for _, nm := range md.GetNestedType() {
		nmd, n := createMessageDescriptor(fd, ret, msgName, nm, symbols)
		symbols[n] = nmd
		ret.nested = append(ret.nested, nmd)
	}
	for _, e := range md.GetEnumType() {
		ed, n := createEnumDescriptor(fd, ret, msgName, e, symbols)
		symbols[n] = ed
		ret.enums = append(ret.enums, ed)
	}
	for _, ex := range md.GetExtension() {
		exd, n := createFieldDescriptor(fd, ret, msgName, ex)
		symbols[n] = exd
		ret.extensions = append(ret.extensions, exd)
	}
	for i, o := range md.GetOneofDecl() {
		od, n := createOneOfDescriptor(fd, ret, i, msgName, o)
		symbols[n] = od
		if !od.IsSynthetic() {
			ret.oneOfs = append(ret.oneOfs, od)
		}
	}
	return ret, msgName
}

func (md *MessageDescriptor) resolve(scopes []scope) error {
	scopes = append(scopes, messageScope(md))
	for _, nmd := range md.nested {
		if err := nmd.resolve(scopes); err != nil {
			return err
		}
	}
	for _, fld := range md.fields {
		if err := fld.resolve(scopes); err != nil {
			return err
		}
	}
	for _, exd := range md.extensions {
		if err := exd.resolve(scopes); err != nil {
			return err
		}
	}
	if md.IsMessageSetWireFormat() {
		if md.file.isProto3 {
			return fmt.Errorf("message %s: message set wire format is not allowed in proto3", md.fqn)
		}
		if len(md.fields) > 0 {
			return fmt.Errorf("message %s: message set wire format messages cannot have regular fields", md.fqn)
		}
	}
	return nil
}

// GetName returns the simple (unqualified) name of the message.
func (md *MessageDescriptor) GetName() string {
	return md.proto.GetName()
}

// GetFullyQualifiedName returns the fully qualified name of the message. This
// includes the package name (if there is one) as well as the names of any
// enclosing messages.
func (md *MessageDescriptor) GetFullyQualifiedName() string {
	return md.fqn
}

// GetParent returns the message's enclosing descriptor. For top-level messages,
// this will be a file descriptor. Otherwise it will be the descriptor for the
// enclosing message.
func (md *MessageDescriptor) GetParent() Descriptor {
	return md.parent
}

// GetFile returns the descriptor for the file in which this message is defined.
func (md *MessageDescriptor) GetFile() *FileDescriptor {
	return md.file
}

func (md *MessageDescriptor) GetOptions() proto.Message {
	return md.proto.GetOptions()
}

func (md *MessageDescriptor) AsProto() proto.Message {
	return md.proto
}

// AsDescriptorProto returns the underlying descriptor proto.
func (md *MessageDescriptor) AsDescriptorProto() *descriptorpb.DescriptorProto {
	return md.proto
}

func (md *MessageDescriptor) String() string {
	return md.fqn
}

// IsMapEntry returns true if this is a synthetic message type that represents an entry
// in a map field.
func (md *MessageDescriptor) IsMapEntry() bool {
	return md.proto.GetOptions().GetMapEntry()
}

// IsMessageSetWireFormat returns true if the message uses the legacy MessageSet
// framing for its extensions.
func (md *MessageDescriptor) IsMessageSetWireFormat() bool {
	return md.proto.GetOptions().GetMessageSetWireFormat()
}

// IsProto3 returns true if the file in which this message is defined declares a syntax of "proto3".
func (md *MessageDescriptor) IsProto3() bool {
	return md.file.isProto3
}

// GetFields returns all of the fields for this message, in declaration order.
func (md *MessageDescriptor) GetFields() []*FieldDescriptor {
	return md.fields
}

// GetFieldsByNumber returns all of the fields for this message, in ascending
// order of field number.
func (md *MessageDescriptor) GetFieldsByNumber() []*FieldDescriptor {
	return md.fieldsByNumber
}

// GetNestedMessageTypes returns all of the message types declared inside this message.
func (md *MessageDescriptor) GetNestedMessageTypes() []*MessageDescriptor {
	return md.nested
}

// GetNestedEnumTypes returns all of the enums declared inside this message.
func (md *MessageDescriptor) GetNestedEnumTypes() []*EnumDescriptor {
	return md.enums
}

// GetNestedExtensions returns all of the extensions declared inside this message.
func (md *MessageDescriptor) GetNestedExtensions() []*FieldDescriptor {
	return md.extensions
}

// GetOneOfs returns all of the one-of field sets declared inside this message.
// Synthetic oneofs, which proto3 uses to track presence of optional fields,
// are not included.
func (md *MessageDescriptor) GetOneOfs() []*OneOfDescriptor {
	return md.oneOfs
}

// GetExtensionRanges returns the ranges of extension field numbers for this message.
// Range ends are exclusive.
func (md *MessageDescriptor) GetExtensionRanges() []*descriptorpb.DescriptorProto_ExtensionRange {
	return md.proto.GetExtensionRange()
}

// IsExtendable returns true if this message has any extension ranges.
func (md *MessageDescriptor) IsExtendable() bool {
	return len(md.proto.GetExtensionRange()) > 0
}

// IsExtension returns true if the given tag number is within any of this message's
// extension ranges.
func (md *MessageDescriptor) IsExtension(tagNumber int32) bool {
	for _, rng := range md.proto.GetExtensionRange() {
		if tagNumber >= rng.GetStart() && tagNumber < rng.GetEnd() {
			return true
		}
	}
	return false
}

// FindFieldByName finds the field with the given name. If no such field exists
// then nil is returned. Only regular fields are returned, not extensions.
func (md *MessageDescriptor) FindFieldByName(fieldName string) *FieldDescriptor {
	return md.byName[fieldName]
}

// FindFieldByJSONName finds the field with the given JSON name. If no such
// field exists then nil is returned. Only regular fields are returned, not
// extensions.
func (md *MessageDescriptor) FindFieldByJSONName(jsonName string) *FieldDescriptor {
	return md.byJSONName[jsonName]
}

// FindFieldByNumber finds the field with the given tag number. If no such field
// exists then nil is returned. Only regular fields are returned, not extensions.
func (md *MessageDescriptor) FindFieldByNumber(tagNumber int32) *FieldDescriptor {
	return md.byNumber[tagNumber]
}

// EnumDescriptor describes an enum declared in a proto file.
type EnumDescriptor struct {
	proto    *descriptorpb.EnumDescriptorProto
	parent   Descriptor
	file     *FileDescriptor
	values   []*EnumValueDescriptor
	byNumber map[int32]*EnumValueDescriptor
	byName   map[string]*EnumValueDescriptor
	fqn      string
}

func createEnumDescriptor(fd *FileDescriptor, parent Descriptor, enclosing string, ed *descriptorpb.EnumDescriptorProto, symbols map[string]Descriptor) (*EnumDescriptor, string) {
	enumName := merge(enclosing, ed.GetName())
	ret := &EnumDescriptor{
		proto:    ed,
		parent:   parent,
		file:     fd,
		fqn:      enumName,
		byNumber: map[int32]*EnumValueDescriptor{},
		byName:   map[string]*EnumValueDescriptor{},
	}
	for _, ev := range ed.GetValue() {
		// enum values are scoped as siblings of the enum, not children
		evd, n := createEnumValueDescriptor(fd, ret, enclosing, ev)
		symbols[n] = evd
		ret.values = append(ret.values, evd)
		if _, ok := ret.byNumber[evd.GetNumber()]; !ok {
			// first name wins for aliases
			ret.byNumber[evd.GetNumber()] = evd
		}
		ret.byName[evd.GetName()] = evd
	}
	return ret, enumName
}

// GetName returns the simple (unqualified) name of the enum type.
func (ed *EnumDescriptor) GetName() string {
	return ed.proto.GetName()
}

// GetFullyQualifiedName returns the fully qualified name of the enum type.
// This includes the package name (if there is one) as well as the names of any
// enclosing messages.
func (ed *EnumDescriptor) GetFullyQualifiedName() string {
	return ed.fqn
}

func (ed *EnumDescriptor) GetParent() Descriptor {
	return ed.parent
}

func (ed *EnumDescriptor) GetFile() *FileDescriptor {
	return ed.file
}

func (ed *EnumDescriptor) GetOptions() proto.Message {
	return ed.proto.GetOptions()
}

func (ed *EnumDescriptor) AsProto() proto.Message {
	return ed.proto
}

// AsEnumDescriptorProto returns the underlying descriptor proto.
func (ed *EnumDescriptor) AsEnumDescriptorProto() *descriptorpb.EnumDescriptorProto {
	return ed.proto
}

func (ed *EnumDescriptor) String() string {
	return ed.fqn
}

// GetValues returns all of the allowed values defined for this enum.
func (ed *EnumDescriptor) GetValues() []*EnumValueDescriptor {
	return ed.values
}

// IsClosed returns true if values not declared in the enum are rejected. Enums
// declared in proto2 files are closed; proto3 enums are open.
func (ed *EnumDescriptor) IsClosed() bool {
	return !ed.file.isProto3
}

// FindValueByName finds the enum value with the given name. If no such value exists
// then nil is returned.
func (ed *EnumDescriptor) FindValueByName(name string) *EnumValueDescriptor {
	return ed.byName[name]
}

// FindValueByNumber finds the value with the given numeric value. If no such value
// exists then nil is returned. If aliases are allowed and multiple values have the
// given number, the first declared value is returned.
func (ed *EnumDescriptor) FindValueByNumber(num int32) *EnumValueDescriptor {
	return ed.byNumber[num]
}

// EnumValueDescriptor describes an allowed value of an enum declared in a proto file.
type EnumValueDescriptor struct {
	proto  *descriptorpb.EnumValueDescriptorProto
	parent *EnumDescriptor
	file   *FileDescriptor
	fqn    string
}

func createEnumValueDescriptor(fd *FileDescriptor, parent *EnumDescriptor, enclosing string, evd *descriptorpb.EnumValueDescriptorProto) (*EnumValueDescriptor, string) {
	valName := merge(enclosing, evd.GetName())
	return &EnumValueDescriptor{proto: evd, parent: parent, file: fd, fqn: valName}, valName
}

func (vd *EnumValueDescriptor) GetName() string {
	return vd.proto.GetName()
}

// GetNumber returns the numeric value associated with this enum value.
func (vd *EnumValueDescriptor) GetNumber() int32 {
	return vd.proto.GetNumber()
}

func (vd *EnumValueDescriptor) GetFullyQualifiedName() string {
	return vd.fqn
}

func (vd *EnumValueDescriptor) GetParent() Descriptor {
	return vd.parent
}

// GetEnum returns the enum in which this enum value is defined.
func (vd *EnumValueDescriptor) GetEnum() *EnumDescriptor {
	return vd.parent
}

func (vd *EnumValueDescriptor) GetFile() *FileDescriptor {
	return vd.file
}

func (vd *EnumValueDescriptor) GetOptions() proto.Message {
	return vd.proto.GetOptions()
}

func (vd *EnumValueDescriptor) AsProto() proto.Message {
	return vd.proto
}

func (vd *EnumValueDescriptor) String() string {
	return vd.fqn
}

// ServiceDescriptor describes an RPC service declared in a proto file.
type ServiceDescriptor struct {
	proto   *descriptorpb.ServiceDescriptorProto
	file    *FileDescriptor
	methods []*MethodDescriptor
	fqn     string
}

func createServiceDescriptor(fd *FileDescriptor, enclosing string, sd *descriptorpb.ServiceDescriptorProto, symbols map[string]Descriptor) (*ServiceDescriptor, string) {
	serviceName := merge(enclosing, sd.GetName())
	ret := &ServiceDescriptor{proto: sd, file: fd, fqn: serviceName}
	for _, m := range sd.GetMethod() {
		md, n := createMethodDescriptor(fd, ret, serviceName, m)
		symbols[n] = md
		ret.methods = append(ret.methods, md)
	}
	return ret, serviceName
}

func (sd *ServiceDescriptor) resolve(scopes []scope) error {
	for _, md := range sd.methods {
		if err := md.resolve(scopes); err != nil {
			return err
		}
	}
	return nil
}

func (sd *ServiceDescriptor) GetName() string {
	return sd.proto.GetName()
}

func (sd *ServiceDescriptor) GetFullyQualifiedName() string {
	return sd.fqn
}

func (sd *ServiceDescriptor) GetParent() Descriptor {
	return sd.file
}

func (sd *ServiceDescriptor) GetFile() *FileDescriptor {
	return sd.file
}

func (sd *ServiceDescriptor) GetOptions() proto.Message {
	return sd.proto.GetOptions()
}

func (sd *ServiceDescriptor) AsProto() proto.Message {
	return sd.proto
}

func (sd *ServiceDescriptor) String() string {
	return sd.fqn
}

// GetMethods returns the RPC methods available in this service.
func (sd *ServiceDescriptor) GetMethods() []*MethodDescriptor {
	return sd.methods
}

// FindMethodByName finds the method with the given name. If no such method exists
// then nil is returned.
func (sd *ServiceDescriptor) FindMethodByName(name string) *MethodDescriptor {
	for _, md := range sd.methods {
		if md.GetName() == name {
			return md
		}
	}
	return nil
}

// MethodDescriptor describes an RPC method declared in a proto file.
type MethodDescriptor struct {
	proto   *descriptorpb.MethodDescriptorProto
	parent  *ServiceDescriptor
	file    *FileDescriptor
	inType  *MessageDescriptor
	outType *MessageDescriptor
	fqn     string
}

func createMethodDescriptor(fd *FileDescriptor, parent *ServiceDescriptor, enclosing string, md *descriptorpb.MethodDescriptorProto) (*MethodDescriptor, string) {
	methodName := merge(enclosing, md.GetName())
	return &MethodDescriptor{proto: md, parent: parent, file: fd, fqn: methodName}, methodName
}

func (md *MethodDescriptor) resolve(scopes []scope) error {
	d, err := resolve(md.file, md.proto.GetInputType(), scopes)
	if err != nil {
		return err
	}
	var ok bool
	if md.inType, ok = d.(*MessageDescriptor); !ok {
		return fmt.Errorf("method %s: input type %s is not a message", md.fqn, d.GetFullyQualifiedName())
	}
	d, err = resolve(md.file, md.proto.GetOutputType(), scopes)
	if err != nil {
		return err
	}
	if md.outType, ok = d.(*MessageDescriptor); !ok {
		return fmt.Errorf("method %s: output type %s is not a message", md.fqn, d.GetFullyQualifiedName())
	}
	return nil
}

func (md *MethodDescriptor) GetName() string {
	return md.proto.GetName()
}

func (md *MethodDescriptor) GetFullyQualifiedName() string {
	return md.fqn
}

func (md *MethodDescriptor) GetParent() Descriptor {
	return md.parent
}

// GetService returns the RPC service in which this method is declared.
func (md *MethodDescriptor) GetService() *ServiceDescriptor {
	return md.parent
}

func (md *MethodDescriptor) GetFile() *FileDescriptor {
	return md.file
}

func (md *MethodDescriptor) GetOptions() proto.Message {
	return md.proto.GetOptions()
}

func (md *MethodDescriptor) AsProto() proto.Message {
	return md.proto
}

func (md *MethodDescriptor) String() string {
	return md.fqn
}

// IsServerStreaming returns true if this is a server-streaming method.
func (md *MethodDescriptor) IsServerStreaming() bool {
	return md.proto.GetServerStreaming()
}

// IsClientStreaming returns true if this is a client-streaming method.
func (md *MethodDescriptor) IsClientStreaming() bool {
	return md.proto.GetClientStreaming()
}

// GetInputType returns the input type, or request type, of the RPC method.
func (md *MethodDescriptor) GetInputType() *MessageDescriptor {
	return md.inType
}

// GetOutputType returns the output type, or response type, of the RPC method.
func (md *MethodDescriptor) GetOutputType() *MessageDescriptor {
	return md.outType
}

// OneOfDescriptor describes a one-of field set declared in a protocol buffer message.
type OneOfDescriptor struct {
	proto   *descriptorpb.OneofDescriptorProto
	parent  *MessageDescriptor
	file    *FileDescriptor
	choices []*FieldDescriptor
	fqn     string
}

func createOneOfDescriptor(fd *FileDescriptor, parent *MessageDescriptor, index int, enclosing string, od *descriptorpb.OneofDescriptorProto) (*OneOfDescriptor, string) {
	oneOfName := merge(enclosing, od.GetName())
	ret := &OneOfDescriptor{proto: od, parent: parent, file: fd, fqn: oneOfName}
	for _, f := range parent.fields {
		oi := f.proto.OneofIndex
		if oi != nil && *oi == int32(index) {
			ret.choices = append(ret.choices, f)
		}
	}
	if !ret.IsSynthetic() {
		for _, f := range ret.choices {
			f.oneOf = ret
		}
	}
	return ret, oneOfName
}

func (od *OneOfDescriptor) GetName() string {
	return od.proto.GetName()
}

func (od *OneOfDescriptor) GetFullyQualifiedName() string {
	return od.fqn
}

func (od *OneOfDescriptor) GetParent() Descriptor {
	return od.parent
}

// GetOwner returns the message to which this one-of field set belongs.
func (od *OneOfDescriptor) GetOwner() *MessageDescriptor {
	return od.parent
}

func (od *OneOfDescriptor) GetFile() *FileDescriptor {
	return od.file
}

func (od *OneOfDescriptor) GetOptions() proto.Message {
	return od.proto.GetOptions()
}

func (od *OneOfDescriptor) AsProto() proto.Message {
	return od.proto
}

func (od *OneOfDescriptor) String() string {
	return od.fqn
}

// GetChoices returns the fields that are part of the one-of field set. At most one of
// these fields may be set for a given message.
func (od *OneOfDescriptor) GetChoices() []*FieldDescriptor {
	return od.choices
}

// IsSynthetic returns true if this is a oneof that proto3 generates to track
// the presence of a single optional field.
func (od *OneOfDescriptor) IsSynthetic() bool {
	return len(od.choices) == 1 && od.choices[0].proto.GetProto3Optional()
}

// scope represents a lexical scope in a proto file in which messages and enums
// can be declared.
type scope func(string) Descriptor

func fileScope(fd *FileDescriptor) scope {
	// we search symbols in this file, but also symbols in other files
	// that have the same package as this file
	pkg := fd.proto.GetPackage()
	fds := collectFilesInPackage(pkg, fd.deps, []*FileDescriptor{fd})
	return func(name string) Descriptor {
		n := merge(pkg, name)
		for _, fd := range fds {
			if d, ok := fd.symbols[n]; ok {
				return d
			}
		}
		return nil
	}
}

func collectFilesInPackage(pkg string, fds []*FileDescriptor, results []*FileDescriptor) []*FileDescriptor {
	for _, fd := range fds {
		if fd.proto.GetPackage() == pkg {
			results = append(results, fd)
		}
		results = collectFilesInPackage(pkg, fd.publicDeps, results)
	}
	return results
}

func messageScope(md *MessageDescriptor) scope {
	return func(name string) Descriptor {
		n := merge(md.fqn, name)
		if d, ok := md.file.symbols[n]; ok {
			return d
		}
		return nil
	}
}

func resolve(fd *FileDescriptor, name string, scopes []scope) (Descriptor, error) {
	if strings.HasPrefix(name, ".") {
		// already fully-qualified
		d := findSymbol(fd, name[1:], false)
		if d != nil {
			return d, nil
		}
	} else {
		// unqualified, so we look in the enclosing (last) scope first and move
		// towards outermost (first) scope, trying to resolve the symbol
		for i := len(scopes) - 1; i >= 0; i-- {
			d := scopes[i](name)
			if d != nil {
				return d, nil
			}
		}
		// and then the global package namespace
		if d := findSymbol(fd, name, false); d != nil {
			return d, nil
		}
	}
	return nil, fmt.Errorf("file %q included an unresolvable reference to %q", fd.proto.GetName(), name)
}

func findSymbol(fd *FileDescriptor, name string, public bool) Descriptor {
	d := fd.symbols[name]
	if d != nil {
		return d
	}

	// When public = false, we are searching only directly imported symbols. But we
	// also need to search transitive public imports due to semantics of public imports.
	var deps []*FileDescriptor
	if public {
		deps = fd.publicDeps
	} else {
		deps = fd.deps
	}
	for _, dep := range deps {
		d = findSymbol(dep, name, true)
		if d != nil {
			return d
		}
	}

	return nil
}

func merge(a, b string) string {
	if a == "" {
		return b
	}
	return a + "." + b
}
