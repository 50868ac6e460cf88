/*
Copyright (c) Meta Platforms, Inc. and affiliates.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package qpdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameEqualIsCaseInsensitive(t *testing.T) {
	a, err := NewName("WWW.Example.COM.")
	require.NoError(t, err)
	b, err := NewName("www.example.com.")
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestNameParentAndWildcardSibling(t *testing.T) {
	n, err := NewName("www.example.com.")
	require.NoError(t, err)

	parent, ok := n.Parent()
	require.True(t, ok)
	require.Equal(t, "example.com.", parent.String())

	wild, ok := n.WildcardSibling()
	require.True(t, ok)
	require.Equal(t, "*.example.com.", wild.String())

	root := RootName()
	_, ok = root.Parent()
	require.False(t, ok)
}

func TestIsSubdomain(t *testing.T) {
	parent, _ := NewName("example.com.")
	child, _ := NewName("www.example.com.")
	other, _ := NewName("example.net.")

	require.True(t, IsSubdomain(child, parent))
	require.True(t, IsSubdomain(parent, parent))
	require.False(t, IsSubdomain(parent, child))
	require.False(t, IsSubdomain(other, parent))
}

func TestCanonicalOrderSortsRootFirst(t *testing.T) {
	a, _ := NewName("example.com.")
	b, _ := NewName("www.example.com.")
	c, _ := NewName("example.net.")

	require.True(t, Compare(a, b) < 0)
	require.True(t, Compare(a, c) < 0)
}

func TestConcatBuildsWildcardOwner(t *testing.T) {
	star, _ := NewName("*.")
	parent, _ := NewName("example.com.")
	got := Concat(star, parent)
	require.Equal(t, "*.example.com.", got.String())
}
