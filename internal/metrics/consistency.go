// Package metrics computes the Style Recipe consistency metrics: CLIP
// embedding similarity and color histogram correlation between a generated
// image and the recipe's original reference image.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/webp"
)

// Embedder produces a vision-language embedding for an image, used for CLIP
// cosine similarity. External collaborator; the consistency scorer degrades
// gracefully when one is unavailable.
type Embedder interface {
	Embed(ctx context.Context, pngBytes []byte) ([]float32, error)
}

// Result is the computed consistency record. Compute returns a nil Result
// and an error when no embedder is configured.
type Result struct {
	CLIPSimilarity           float64
	ColorHistogramSimilarity float64
	Overall                  float64
}

// CLIPWeight and ColorWeight set the reasoned-default blend for Overall.
const (
	CLIPWeight  = 0.7
	ColorWeight = 0.3
)

// Compute derives consistency metrics for one generated image against the
// recipe's reference image. Decoding happens synchronously here; callers
// from a per-variant-parallel stage must run Compute on the worker pool so
// the fan-out stays genuinely concurrent.
func Compute(ctx context.Context, embedder Embedder, generated, reference []byte) (*Result, error) {
	colorSim, err := colorHistogramSimilarity(generated, reference)
	if err != nil {
		return nil, fmt.Errorf("color histogram: %w", err)
	}

	if embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	genEmb, err := embedder.Embed(ctx, generated)
	if err != nil {
		return nil, fmt.Errorf("embed generated image: %w", err)
	}
	refEmb, err := embedder.Embed(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("embed reference image: %w", err)
	}

	clipSim := cosineSimilarity(genEmb, refEmb)

	return &Result{
		CLIPSimilarity:           clipSim,
		ColorHistogramSimilarity: colorSim,
		Overall:                  CLIPWeight*clipSim + ColorWeight*colorSim,
	}, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp01(sim)
}

// colorHistogramSimilarity decodes both images, buckets each channel into a
// normalized 16-bin RGB histogram, and returns their correlation in [0,1].
func colorHistogramSimilarity(a, b []byte) (float64, error) {
	imgA, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return 0, fmt.Errorf("decode first image: %w", err)
	}
	imgB, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("decode second image: %w", err)
	}

	histA := rgbHistogram(imgA)
	histB := rgbHistogram(imgB)
	return clamp01(histogramCorrelation(histA, histB)), nil
}

const bins = 16

func rgbHistogram(img image.Image) [3][bins]float64 {
	var hist [3][bins]float64
	bounds := img.Bounds()
	var total float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			hist[0][bucket(r)]++
			hist[1][bucket(g)]++
			hist[2][bucket(b)]++
			total++
		}
	}
	if total == 0 {
		return hist
	}
	for c := range hist {
		for i := range hist[c] {
			hist[c][i] /= total
		}
	}
	return hist
}

// bucket maps a 16-bit RGBA channel value into one of `bins` buckets.
func bucket(v uint32) int {
	b := int(v) * bins / 65536
	if b >= bins {
		b = bins - 1
	}
	return b
}

// histogramCorrelation averages the Pearson correlation of each channel's
// histogram, a standard color-consistency proxy.
func histogramCorrelation(a, b [3][bins]float64) float64 {
	var sum float64
	for c := 0; c < 3; c++ {
		sum += pearson(a[c][:], b[c][:])
	}
	return sum / 3
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}
	num := n*sumXY - sumX*sumY
	den := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
