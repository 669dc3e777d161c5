// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionParse(t *testing.T) {
	v, err := ParseVersion("3-5")
	require.NoError(t, err)
	require.Equal(t, MakeVersion(3, 5), v)

	v, err = ParseVersion("4")
	require.NoError(t, err)
	require.Equal(t, SingletonVersion(4), v)
	require.True(t, v.IsSingleton())

	_, err = ParseVersion("5-3")
	require.Error(t, err)
	_, err = ParseVersion("x")
	require.Error(t, err)
}

func TestVersionPredicates(t *testing.T) {
	v := MakeVersion(2, 4)
	require.True(t, v.Contains(2))
	require.True(t, v.Contains(4))
	require.False(t, v.Contains(5))

	require.True(t, v.Overlaps(MakeVersion(4, 9)))
	require.True(t, v.Overlaps(MakeVersion(0, 2)))
	require.False(t, v.Overlaps(MakeVersion(5, 9)))

	require.True(t, v.Precedes(MakeVersion(5, 5)))
	require.False(t, v.Precedes(MakeVersion(6, 6)))
	require.Equal(t, "[2,4]", v.String())
}
