package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPage_Offset(t *testing.T) {
	cases := []struct {
		in     Page
		want   Page
		offset int
	}{
		{Page{}, Page{Page: 1, Limit: DefaultLimit}, 0},
		{Page{Page: 3, Limit: 10}, Page{Page: 3, Limit: 10}, 20},
		{Page{Page: -2, Limit: 1000}, Page{Page: 1, Limit: MaxLimit}, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.in.normalize())
		assert.Equal(t, tc.offset, tc.in.Offset())
	}
}
