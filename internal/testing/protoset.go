// Package testing contains helpers for tests that need message schemas. Schemas
// are compiled from inline proto sources or decoded from text format
// descriptor sets.
package testing

import (
	"context"
	"testing"

	"github.com/bufbuild/protocompile"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protoruntime/desc"
)

// Compile compiles the named files from the given sources, which are keyed
// by file name. Imports of the standard well-known files resolve without
// being included in sources.
func Compile(ctx context.Context, sources map[string]string, names ...string) ([]protoreflect.FileDescriptor, error) {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(sources),
		}),
	}
	files, err := compiler.Compile(ctx, names...)
	if err != nil {
		return nil, err
	}
	results := make([]protoreflect.FileDescriptor, len(files))
	for i, f := range files {
		results[i] = f
	}
	return results, nil
}

// LoadSource compiles the given source as a file named "test.proto" and
// loads the result. The test fails if compilation does not succeed.
func LoadSource(t testing.TB, source string) *desc.FileDescriptor {
	t.Helper()
	return LoadSources(t, map[string]string{"test.proto": source}, "test.proto")[0]
}

// LoadSources compiles and loads the named files from the given sources.
func LoadSources(t testing.TB, sources map[string]string, names ...string) []*desc.FileDescriptor {
	t.Helper()
	files, err := Compile(context.Background(), sources, names...)
	require.NoError(t, err)
	results := make([]*desc.FileDescriptor, len(files))
	for i, f := range files {
		results[i], err = desc.LoadFileDescriptor(f)
		require.NoError(t, err)
	}
	return results
}

// LoadMessage compiles the given source and returns the named message.
func LoadMessage(t testing.TB, source, messageName string) *desc.MessageDescriptor {
	t.Helper()
	md := LoadSource(t, source).FindMessage(messageName)
	require.NotNil(t, md, "message %s not found", messageName)
	return md
}

// LoadProtosetText decodes a google.protobuf.FileDescriptorSet from the given
// text format and creates descriptors for it. It returns the last file in the
// set; earlier files must be its dependencies. This is needed for schemas
// that the compiler refuses, like those that use the MessageSet wire format.
func LoadProtosetText(t testing.TB, setText string) *desc.FileDescriptor {
	t.Helper()
	var fds descriptorpb.FileDescriptorSet
	require.NoError(t, prototext.Unmarshal([]byte(setText), &fds))
	fd, err := desc.CreateFileDescriptorFromSet(&fds)
	require.NoError(t, err)
	return fd
}
