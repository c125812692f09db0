package schema_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/furlat/Abstractions-sub003/pkg/schema"
)

type sampleKwargs struct {
	Name string
	Age  int
}

func TestForTypeDereferencesPointerKinds(t *testing.T) {
	byValue, errValue := schema.ForType(reflect.TypeOf(sampleKwargs{}))
	byPointer, errPointer := schema.ForType(reflect.TypeOf(&sampleKwargs{}))

	require := assert.New(t)
	require.Equal(errValue == nil, errPointer == nil, "pointer and value kinds must synthesize identically")
	if errValue == nil {
		require.NotNil(byValue)
		require.NotNil(byPointer)
	}
}
