// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendCommand appends its suffix to the string input.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	fail   bool
	calls  *int
}

func newAppend(name string, suffix string, fail bool, calls *int) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix, fail: fail, calls: calls}
}

func (c *appendCommand) Execute(context cor.Context) {
	*c.calls++
	if c.fail {
		c.Fail(context, errors.New("boom"))
		return
	}
	in := context.Get(c.GetInputParam()).(string)
	c.Succeed(context, in+c.suffix)
}

// captureCommand stores its input under a fixed key so tests can read the
// final piped value.
type captureCommand struct {
	cor.BaseCommand
}

func (c *captureCommand) Execute(context cor.Context) {
	context.Add("result", context.Get(c.GetInputParam()))
}

func TestChainPipesOutputToInput(t *testing.T) {
	calls := 0
	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(newAppend("a", "-a", false, &calls))
	chain.AddCommand(newAppend("b", "-b", false, &calls))
	chain.AddCommand(&captureCommand{BaseCommand: *cor.NewBaseCommand("capture")})

	chCtx := cor.NewContext(context.Background(), "start")
	chain.Execute(chCtx)

	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, "start-a-b", chCtx.Get("result"))
	assert.Equal(t, 2, calls)
}

func TestChainStopsOnFailure(t *testing.T) {
	calls := 0
	chain := cor.NewBaseChain("stop")
	chain.AddCommand(newAppend("a", "-a", true, &calls))
	chain.AddCommand(newAppend("b", "-b", false, &calls))

	chCtx := cor.NewContext(context.Background(), "start")
	chain.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.Equal(t, 1, calls)
	assert.ErrorContains(t, chCtx.Err(), "a: boom")
}

func TestChainContinueOnFailure(t *testing.T) {
	calls := 0
	chain := cor.NewBaseChain("continue")
	chain.ContinueOnFailure(true)
	chain.AddCommand(newAppend("a", "-a", true, &calls))
	// The failed command produced no output so "b" is not executable.
	chain.AddCommand(newAppend("b", "-b", false, &calls))

	chCtx := cor.NewContext(context.Background(), "start")
	chain.Execute(chCtx)

	assert.Equal(t, 1, calls)
	assert.Len(t, chCtx.GetErrors(), 1)
}

func TestChainHonoursCancellation(t *testing.T) {
	calls := 0
	chain := cor.NewBaseChain("cancel")
	chain.AddCommand(newAppend("a", "-a", false, &calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chCtx := cor.NewContext(ctx, "start")
	chain.Execute(chCtx)

	assert.Equal(t, 0, calls)
	assert.True(t, errors.Is(chCtx.Err(), context.Canceled))
}

func TestContextConcurrentErrors(t *testing.T) {
	chCtx := cor.NewContext(context.Background(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chCtx.AddError(string(rune('a'+i%4)), errors.New("x"))
		}(i)
	}
	wg.Wait()
	assert.Len(t, chCtx.GetErrors(), 4)
}

func TestContextCloseRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "audio.wav")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	sub := filepath.Join(dir, "frames")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.AddTempFile(file)
	chCtx.AddTempFile(sub)
	chCtx.Close()

	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sub)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, chCtx.GetTempFiles())
}
