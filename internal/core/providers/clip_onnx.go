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

package providers

import (
	"context"
	"fmt"
	"sync"

	tokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	clipContextLength = 77
	clipPadToken      = 49407
	clipImageBatch    = 16
)

// ClipOptions locate the exported CLIP text and vision graphs.
type ClipOptions struct {
	ModelName         string
	SharedLibraryPath string
	TokenizerPath     string
	TextModelPath     string
	VisionModelPath   string
	TextInputs        []string
	TextOutput        string
	VisionInput       string
	VisionOutput      string
	IntraOpThreads    int
}

func (o *ClipOptions) defaults() {
	if len(o.TextInputs) == 0 {
		o.TextInputs = []string{"input_ids", "attention_mask"}
	}
	if o.TextOutput == "" {
		o.TextOutput = "text_embeds"
	}
	if o.VisionInput == "" {
		o.VisionInput = "pixel_values"
	}
	if o.VisionOutput == "" {
		o.VisionOutput = "image_embeds"
	}
}

var ortInit sync.Mutex

// ClipEmbedder runs CLIP through ONNX Runtime. Text and images share the
// projection space of the same checkpoint.
type ClipEmbedder struct {
	opts   ClipOptions
	tok    *tokenizer.Tokenizer
	text   *ort.DynamicAdvancedSession
	vision *ort.DynamicAdvancedSession
}

var _ VisualEmbedder = (*ClipEmbedder)(nil)

// NewClipEmbedder loads the tokenizer and both sessions.
func NewClipEmbedder(opts ClipOptions) (*ClipEmbedder, error) {
	opts.defaults()
	tok, err := pretrained.FromFile(opts.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	ortInit.Lock()
	if !ort.IsInitialized() {
		if opts.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(opts.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortInit.Unlock()
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	ortInit.Unlock()

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()
	if err := sessionOpts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("failed to set graph optimization: %w", err)
	}
	if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	text, err := ort.NewDynamicAdvancedSession(opts.TextModelPath, opts.TextInputs, []string{opts.TextOutput}, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create text session: %w", err)
	}
	vision, err := ort.NewDynamicAdvancedSession(opts.VisionModelPath, []string{opts.VisionInput}, []string{opts.VisionOutput}, sessionOpts)
	if err != nil {
		text.Destroy()
		return nil, fmt.Errorf("failed to create vision session: %w", err)
	}
	return &ClipEmbedder{opts: opts, tok: tok, text: text, vision: vision}, nil
}

func (c *ClipEmbedder) Model() string {
	return c.opts.ModelName
}

// EmbedQuery encodes text with the CLIP text tower.
func (c *ClipEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("clip text", err)
	}
	enc, err := c.tok.EncodeSingle(query, true)
	if err != nil {
		return nil, wrap("clip tokenize", err)
	}
	ids, mask := ClipTokens(enc.GetIds(), enc.GetAttentionMask())

	shape := ort.NewShape(1, clipContextLength)
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, wrap("clip text", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, wrap("clip text", err)
	}
	defer maskTensor.Destroy()

	inputs := []ort.Value{idsTensor}
	if len(c.opts.TextInputs) > 1 {
		inputs = append(inputs, maskTensor)
	}
	out, err := c.run(c.text, inputs)
	if err != nil {
		return nil, wrap("clip text", err)
	}
	return out[0], nil
}

// EmbedImages encodes image files with the CLIP vision tower. An unreadable
// image fails the whole call.
func (c *ClipEmbedder) EmbedImages(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, 0, len(paths))
	for _, batch := range batches(paths, clipImageBatch) {
		if err := ctx.Err(); err != nil {
			return nil, wrap("clip vision", err)
		}
		pixels := make([]float32, 0, len(batch)*3*ClipImageSize*ClipImageSize)
		for _, p := range batch {
			img, err := LoadImage(p)
			if err != nil {
				return nil, wrap("clip vision", err)
			}
			pixels = PixelValues(pixels, ResizeAndCrop(img, ClipImageSize))
		}
		tensor, err := ort.NewTensor(ort.NewShape(int64(len(batch)), 3, ClipImageSize, ClipImageSize), pixels)
		if err != nil {
			return nil, wrap("clip vision", err)
		}
		vecs, err := c.run(c.vision, []ort.Value{tensor})
		tensor.Destroy()
		if err != nil {
			return nil, wrap("clip vision", err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *ClipEmbedder) run(session *ort.DynamicAdvancedSession, inputs []ort.Value) ([][]float32, error) {
	outputs := make([]ort.Value, 1)
	if err := session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output tensor is not float32 type")
	}
	shape := tensor.GetShape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	data := tensor.GetData()
	rows, dim := shape[0], shape[1]
	vecs := make([][]float32, rows)
	for i := int64(0); i < rows; i++ {
		v := make([]float32, dim)
		copy(v, data[i*dim:(i+1)*dim])
		vecs[i] = Normalize(v)
	}
	return vecs, nil
}

// Close destroys both sessions.
func (c *ClipEmbedder) Close() error {
	if c.text != nil {
		c.text.Destroy()
	}
	if c.vision != nil {
		c.vision.Destroy()
	}
	return nil
}

// ClipTokens truncates or pads a token sequence to the CLIP context length.
// A truncated sequence keeps its final end-of-text token.
func ClipTokens(ids []int, mask []int) ([]int64, []int64) {
	outIds := make([]int64, clipContextLength)
	outMask := make([]int64, clipContextLength)
	for i := range outIds {
		outIds[i] = clipPadToken
	}
	n := min(len(ids), clipContextLength)
	for i := 0; i < n; i++ {
		outIds[i] = int64(ids[i])
		outMask[i] = 1
		if i < len(mask) {
			outMask[i] = int64(mask[i])
		}
	}
	if len(ids) > clipContextLength {
		outIds[clipContextLength-1] = int64(ids[len(ids)-1])
	}
	return outIds, outMask
}
