package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetHumanVersion(t *testing.T) {
	t.Cleanup(func() {
		GitCommit = ""
		GitDescribe = ""
		Version = "0.1.0"
		VersionPrerelease = "dev"
	})

	require.Equal(t, "0.1.0-dev", GetHumanVersion())

	GitCommit = "abc1234"
	require.Equal(t, "0.1.0-dev (abc1234)", GetHumanVersion())

	GitDescribe = "v0.2.0"
	require.Equal(t, "v0.2.0-dev (abc1234)", GetHumanVersion())

	VersionPrerelease = ""
	require.Equal(t, "v0.2.0 (abc1234)", GetHumanVersion())
}
