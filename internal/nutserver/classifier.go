package nutserver

import (
	"context"
	"math"

	"optiattack/internal/imaging"
	"optiattack/internal/model"
)

// Classifier is the model the reference server puts under test.
type Classifier interface {
	Classify(ctx context.Context, img *imaging.Image) (model.Predictions, error)
}

type ClassifierFunc func(ctx context.Context, img *imaging.Image) (model.Predictions, error)

func (f ClassifierFunc) Classify(ctx context.Context, img *imaging.Image) (model.Predictions, error) {
	return f(ctx, img)
}

// ChannelClassifier is a deterministic toy model: a softmax over the mean
// intensity of each color channel. Good enough to demo label flips.
type ChannelClassifier struct {
	Labels      [3]string
	Temperature float64
}

func NewChannelClassifier() ChannelClassifier {
	return ChannelClassifier{Labels: [3]string{"red", "green", "blue"}, Temperature: 10}
}

func (c ChannelClassifier) Classify(_ context.Context, img *imaging.Image) (model.Predictions, error) {
	var sums [3]float64
	pixels := img.Width * img.Height
	for i := 0; i+2 < len(img.Pix); i += 3 {
		sums[0] += float64(img.Pix[i])
		sums[1] += float64(img.Pix[i+1])
		sums[2] += float64(img.Pix[i+2])
	}
	temp := c.Temperature
	if temp == 0 {
		temp = 1
	}
	var logits [3]float64
	peak := math.Inf(-1)
	for ch := range sums {
		mean := 0.0
		if pixels > 0 {
			mean = sums[ch] / float64(pixels) / 255
		}
		logits[ch] = temp * mean
		peak = math.Max(peak, logits[ch])
	}
	total := 0.0
	for ch := range logits {
		logits[ch] = math.Exp(logits[ch] - peak)
		total += logits[ch]
	}
	preds := make(model.Predictions, 0, 3)
	for ch, label := range c.Labels {
		preds = append(preds, model.Prediction{Label: label, Score: logits[ch] / total})
	}
	return preds.Ranked(), nil
}
