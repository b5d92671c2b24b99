package automation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentpost/automation"
	"github.com/BaSui01/agentpost/testutil/fixtures"
	"github.com/BaSui01/agentpost/testutil/mocks"
	"github.com/BaSui01/agentpost/types"
)

// TestProperty_Runner_ReleasesSessionExactlyOnce
// 对任意消息、是否带图片、在哪一步失败（或不失败），会话都恰好被 Stop 一次，
// 且失败后不再执行后续步骤。
func TestProperty_Runner_ReleasesSessionExactlyOnce(t *testing.T) {
	dir := t.TempDir()

	rapid.Check(t, func(rt *rapid.T) {
		message := rapid.StringMatching(`[a-zA-Z0-9 ]{0,20}[a-zA-Z0-9]`).Draw(rt, "message")
		withImage := rapid.Bool().Draw(rt, "withImage")
		failOn := rapid.IntRange(0, 3).Draw(rt, "failOn") // 0 表示不失败
		stopFails := rapid.Bool().Draw(rt, "stopFails")

		factory := mocks.NewMockSessionFactory(func() *mocks.MockAgent {
			a := mocks.NewMockAgent()
			if failOn > 0 {
				a.WithFailureOn(failOn, errors.New("step failed"))
			}
			if stopFails {
				a.WithStopError(errors.New("stop failed"))
			}
			return a
		})
		runner := automation.NewRunner(fixtures.Config(), factory, zap.NewNop(),
			automation.WithImageFetcher(mocks.NewMockImageFetcher(dir)))

		post := automation.Post{Message: message}
		if withImage {
			post.ImageURL = "https://example.com/pic.png"
		}

		res, err := runner.Run(context.Background(), post)

		agents := factory.Agents()
		require.Len(rt, agents, 1)
		agent := agents[0]
		assert.Equal(rt, 1, agent.StopCalls(), "Stop must be called exactly once")

		if failOn == 0 {
			require.NoError(rt, err)
			assert.Equal(rt, automation.StatePosted, res.State)
			assert.Len(rt, agent.Calls(), 3)
		} else {
			require.Error(rt, err)
			assert.True(rt, types.IsErrorCode(err, types.ErrStepFailed))
			assert.Len(rt, agent.Calls(), failOn, "no step runs after a failure")
			assert.Equal(rt, automation.State(failOn-1), res.State)
		}
	})
}

// TestProperty_Runner_PathSelection
// 带 imageUrl 的请求走上传路径，否则只发送纯文本，且消息原样传递。
func TestProperty_Runner_PathSelection(t *testing.T) {
	dir := t.TempDir()

	rapid.Check(t, func(rt *rapid.T) {
		message := rapid.StringMatching(`[A-Za-z0-9][^\s]{0,39}`).Draw(rt, "message")
		withImage := rapid.Bool().Draw(rt, "withImage")

		factory := mocks.NewMockSessionFactory(nil)
		runner := automation.NewRunner(fixtures.Config(), factory, zap.NewNop(),
			automation.WithImageFetcher(mocks.NewMockImageFetcher(dir)))

		post := automation.Post{Message: message}
		if withImage {
			post.ImageURL = "https://cdn.example.com/" + rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "name") + ".png"
		}

		res, err := runner.Run(context.Background(), post)
		require.NoError(rt, err)

		agent := factory.Agents()[0]
		calls := agent.Calls()
		require.Len(rt, calls, 3)

		last := calls[2]
		assert.Equal(rt, message, last.Data[automation.KeyMessage])
		if withImage {
			assert.Equal(rt, automation.PathImage, res.Path)
			assert.True(rt, agent.UploadRequested())
			assert.Equal(rt, post.ImageURL, last.Data[automation.KeyImageURL])
		} else {
			assert.Equal(rt, automation.PathText, res.Path)
			assert.False(rt, agent.UploadRequested())
			assert.Len(rt, last.Data, 1)
		}
	})
}
