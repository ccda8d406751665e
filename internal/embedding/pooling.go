package embedding

// Pooling strategies for token-level model outputs.
const (
	PoolingNone = "none"
	PoolingMean = "mean"
	PoolingCLS  = "cls"
)

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath  string
	OutputName string
	Pooling    string
	Dimensions int
	MaxTokens  int
	Tokenizer  Tokenizer
}

// pool reduces a model output to one sentence vector of length dims.
// For PoolingNone the output is already [dims]; otherwise it is [tokens*dims]
// and mask selects the tokens that take part in mean pooling.
func pool(strategy string, output []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	switch strategy {
	case PoolingMean:
		var n float32
		for t, m := range mask {
			if m == 0 || (t+1)*dims > len(output) {
				continue
			}
			row := output[t*dims : (t+1)*dims]
			for i, v := range row {
				out[i] += v
			}
			n++
		}
		if n > 0 {
			for i := range out {
				out[i] /= n
			}
		}
	default:
		// PoolingNone and PoolingCLS both read the first dims values.
		copy(out, output)
	}
	return out
}
