package courier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeID_SameAs(t *testing.T) {
	newer := ContentTypeText
	newer.VersionMinor = 3
	assert.True(t, ContentTypeText.SameAs(newer), "versions are ignored")

	assert.False(t, ContentTypeText.SameAs(ContentTypeReply))

	foreign := ContentTypeID{AuthorityID: "example.org", TypeID: "text", VersionMajor: 1}
	assert.False(t, ContentTypeText.SameAs(foreign), "authority is part of identity")
}

func TestContentTypeID_String(t *testing.T) {
	assert.Equal(t, "floatinbox.dev/text:1.0", ContentTypeText.String())
}
