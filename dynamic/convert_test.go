package dynamic_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/jhump/protoruntime/desc"
	"github.com/jhump/protoruntime/dynamic"
)

func TestConvertTo(t *testing.T) {
	md, err := desc.LoadMessageDescriptorForMessage(&durationpb.Duration{})
	require.NoError(t, err)
	m := dynamic.NewMessage(md)
	m.SetFieldByName("seconds", int64(100))
	m.SetFieldByName("nanos", int32(5000))

	dur := &durationpb.Duration{Seconds: 1, Nanos: 1}
	require.NoError(t, m.ConvertTo(dur))
	if diff := cmp.Diff(&durationpb.Duration{Seconds: 100, Nanos: 5000}, dur, protocmp.Transform()); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	// fields not set in m are cleared
	m.ClearFieldByName("nanos")
	require.NoError(t, m.ConvertTo(dur))
	if diff := cmp.Diff(&durationpb.Duration{Seconds: 100}, dur, protocmp.Transform()); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	// unknown fields go along
	require.NoError(t, m.UnmarshalMerge([]byte{0x18, 7})) // 3: 7
	require.NoError(t, m.ConvertTo(dur))
	require.Equal(t, int64(100), dur.Seconds)
	require.Equal(t, []byte{0x18, 7}, []byte(dur.ProtoReflect().GetUnknown()))

	err = m.ConvertTo(&timestamppb.Timestamp{})
	require.ErrorContains(t, err, "wrong type")
}

func TestConvertFrom(t *testing.T) {
	md, err := desc.LoadMessageDescriptorForMessage(&durationpb.Duration{})
	require.NoError(t, err)
	m := dynamic.NewMessage(md)
	m.SetFieldByName("nanos", int32(3))

	require.NoError(t, m.ConvertFrom(&durationpb.Duration{Seconds: 42}))
	require.Equal(t, int64(42), m.GetFieldByName("seconds"))
	require.False(t, m.HasFieldName("nanos"))

	err = m.ConvertFrom(&timestamppb.Timestamp{Seconds: 1})
	require.ErrorContains(t, err, "wrong type")
	// left unchanged on error
	require.Equal(t, int64(42), m.GetFieldByName("seconds"))

	// the converted message round-trips
	back := &durationpb.Duration{}
	require.NoError(t, m.ConvertTo(back))
	require.Equal(t, int64(42), back.Seconds)
}

func TestMergeFromAndInto(t *testing.T) {
	md, err := desc.LoadMessageDescriptorForMessage(&fieldmaskpb.FieldMask{})
	require.NoError(t, err)
	m := dynamic.NewMessage(md)
	m.SetFieldByName("paths", []string{"a"})

	require.NoError(t, m.MergeFrom(&fieldmaskpb.FieldMask{Paths: []string{"b", "c"}}))
	require.Equal(t, []interface{}{"a", "b", "c"}, m.GetFieldByName("paths"))

	fm := &fieldmaskpb.FieldMask{Paths: []string{"x"}}
	require.NoError(t, m.MergeInto(fm))
	if diff := cmp.Diff(&fieldmaskpb.FieldMask{Paths: []string{"x", "a", "b", "c"}}, fm, protocmp.Transform()); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	require.ErrorContains(t, m.MergeFrom(&durationpb.Duration{}), "wrong type")
	require.ErrorContains(t, m.MergeInto(&durationpb.Duration{}), "wrong type")
	require.Equal(t, []interface{}{"a", "b", "c"}, m.GetFieldByName("paths"))
}

func TestSetGeneratedMessageField(t *testing.T) {
	fd := loadProto3(t)
	m := dynamic.NewMessage(fd.FindMessage("test3.Msg"))
	require.NoError(t, m.TrySetFieldByName("dur", &durationpb.Duration{Seconds: 9}))
	dur := m.GetFieldByName("dur").(*dynamic.Message)
	require.Equal(t, int64(9), dur.GetFieldByName("seconds"))
}
