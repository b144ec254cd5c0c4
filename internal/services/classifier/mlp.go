package classifier

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type Activation string

const (
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

const probFloor = 1e-7

// Dense is a fully connected layer: out = act(in·W + b).
type Dense struct {
	Activation Activation
	W          *mat.Dense // inputs x outputs
	B          []float64
}

func (d *Dense) Inputs() int {
	r, _ := d.W.Dims()
	return r
}

func (d *Dense) Outputs() int {
	_, c := d.W.Dims()
	return c
}

// Network is a feed-forward classifier with ReLU hidden layers and a softmax head.
type Network struct {
	Layers []*Dense
}

// NewNetwork builds a Glorot-uniform initialized network from a seeded source.
func NewNetwork(inputs int, hidden []int, outputs int, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	sizes := append(append([]int{inputs}, hidden...), outputs)
	n := &Network{}
	for i := 1; i < len(sizes); i++ {
		in, out := sizes[i-1], sizes[i]
		limit := math.Sqrt(6 / float64(in+out))
		data := make([]float64, in*out)
		for k := range data {
			data[k] = (rng.Float64()*2 - 1) * limit
		}
		act := ReLU
		if i == len(sizes)-1 {
			act = Softmax
		}
		n.Layers = append(n.Layers, &Dense{Activation: act, W: mat.NewDense(in, out, data), B: make([]float64, out)})
	}
	return n
}

func (n *Network) Inputs() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[0].Inputs()
}

func (n *Network) Outputs() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[len(n.Layers)-1].Outputs()
}

// forward returns every layer's activation (index 0 is the input) and
// pre-activation values.
func (n *Network) forward(x *mat.Dense) (acts, pre []*mat.Dense) {
	acts = append(acts, x)
	a := x
	for _, l := range n.Layers {
		z := new(mat.Dense)
		z.Mul(a, l.W)
		r, c := z.Dims()
		for i := 0; i < r; i++ {
			row := z.RawRowView(i)
			for j := 0; j < c; j++ {
				row[j] += l.B[j]
			}
		}
		out := mat.NewDense(r, c, nil)
		switch l.Activation {
		case Softmax:
			softmaxRows(out, z)
		default:
			out.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
		}
		pre = append(pre, z)
		acts = append(acts, out)
		a = out
	}
	return acts, pre
}

func softmaxRows(dst, z *mat.Dense) {
	r, c := z.Dims()
	for i := 0; i < r; i++ {
		src := z.RawRowView(i)
		out := dst.RawRowView(i)
		peak := src[0]
		for _, v := range src[1:] {
			if v > peak {
				peak = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			out[j] = math.Exp(src[j] - peak)
			sum += out[j]
		}
		for j := 0; j < c; j++ {
			out[j] /= sum
		}
	}
}

type gradient struct {
	w *mat.Dense
	b []float64
}

// backward computes softmax cross-entropy gradients averaged over the batch.
func (n *Network) backward(acts, pre []*mat.Dense, y *mat.Dense) []gradient {
	last := len(n.Layers) - 1
	rows, _ := y.Dims()
	delta := new(mat.Dense)
	delta.Sub(acts[last+1], y)
	delta.Scale(1/float64(rows), delta)

	grads := make([]gradient, len(n.Layers))
	for l := last; l >= 0; l-- {
		gw := new(mat.Dense)
		gw.Mul(acts[l].T(), delta)
		grads[l] = gradient{w: gw, b: colSums(delta)}
		if l == 0 {
			break
		}
		next := new(mat.Dense)
		next.Mul(delta, n.Layers[l].W.T())
		z := pre[l-1]
		next.Apply(func(i, j int, v float64) float64 {
			if z.At(i, j) > 0 {
				return v
			}
			return 0
		}, next)
		delta = next
	}
	return grads
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i) {
			out[j] += v
		}
	}
	return out
}

// adam keeps first and second moment estimates per parameter.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mw, vw, mb, vb        [][]float64
}

func newAdam(n *Network, lr float64) *adam {
	o := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, l := range n.Layers {
		size := l.Inputs() * l.Outputs()
		o.mw = append(o.mw, make([]float64, size))
		o.vw = append(o.vw, make([]float64, size))
		o.mb = append(o.mb, make([]float64, len(l.B)))
		o.vb = append(o.vb, make([]float64, len(l.B)))
	}
	return o
}

func (o *adam) step(n *Network, grads []gradient) {
	o.t++
	c1 := 1 - math.Pow(o.beta1, float64(o.t))
	c2 := 1 - math.Pow(o.beta2, float64(o.t))
	for l, layer := range n.Layers {
		o.update(layer.W.RawMatrix().Data, grads[l].w.RawMatrix().Data, o.mw[l], o.vw[l], c1, c2)
		o.update(layer.B, grads[l].b, o.mb[l], o.vb[l], c1, c2)
	}
}

func (o *adam) update(p, g, m, v []float64, c1, c2 float64) {
	for i := range p {
		m[i] = o.beta1*m[i] + (1-o.beta1)*g[i]
		v[i] = o.beta2*v[i] + (1-o.beta2)*g[i]*g[i]
		p[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + o.eps)
	}
}

// FitOptions controls mini-batch training.
type FitOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	// ValX and ValY, when set, are scored after every epoch.
	ValX    [][]float64
	ValY    []int
	OnEpoch func(EpochStats)
}

// EpochStats is one line of training history.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
}

// Fit trains on x with integer class targets y. Batches are taken in row
// order every epoch; shuffle before calling if that matters.
func (n *Network) Fit(ctx context.Context, x [][]float64, y []int, opts FitOptions) ([]EpochStats, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	if err := n.checkInputs(x); err != nil {
		return nil, err
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 32
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.001
	}
	opt := newAdam(n, opts.LearningRate)

	history := make([]EpochStats, 0, opts.Epochs)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		var lossSum float64
		var correct int
		for start := 0; start < len(x); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(x))
			bx, _ := toDense(x[start:end])
			by := oneHot(y[start:end], n.Outputs())
			acts, pre := n.forward(bx)
			probs := acts[len(acts)-1]
			l, c := scoreBatch(probs, y[start:end])
			lossSum += l
			correct += c
			opt.step(n, n.backward(acts, pre, by))
		}
		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(x)),
			Accuracy: float64(correct) / float64(len(x)),
		}
		if len(opts.ValX) > 0 {
			vl, va, err := n.Evaluate(opts.ValX, opts.ValY, opts.BatchSize)
			if err != nil {
				return history, fmt.Errorf("validation: %w", err)
			}
			stats.ValLoss, stats.ValAccuracy = vl, va
		}
		history = append(history, stats)
		if opts.OnEpoch != nil {
			opts.OnEpoch(stats)
		}
	}
	return history, nil
}

// Evaluate returns mean cross-entropy loss and accuracy over x.
func (n *Network) Evaluate(x [][]float64, y []int, batchSize int) (loss, accuracy float64, err error) {
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	if len(x) == 0 {
		return 0, 0, nil
	}
	if err := n.checkInputs(x); err != nil {
		return 0, 0, err
	}
	if batchSize < 1 {
		batchSize = len(x)
	}
	var lossSum float64
	var correct int
	for start := 0; start < len(x); start += batchSize {
		end := min(start+batchSize, len(x))
		bx, _ := toDense(x[start:end])
		acts, _ := n.forward(bx)
		l, c := scoreBatch(acts[len(acts)-1], y[start:end])
		lossSum += l
		correct += c
	}
	return lossSum / float64(len(x)), float64(correct) / float64(len(x)), nil
}

// Probabilities runs a forward pass and returns one distribution per row.
func (n *Network) Probabilities(x [][]float64) ([][]float64, error) {
	if len(n.Layers) == 0 {
		return nil, ErrNotFitted
	}
	if len(x) == 0 {
		return [][]float64{}, nil
	}
	if err := n.checkInputs(x); err != nil {
		return nil, err
	}
	m, err := toDense(x)
	if err != nil {
		return nil, err
	}
	acts, _ := n.forward(m)
	probs := acts[len(acts)-1]
	rows, _ := probs.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, probs)
	}
	return out, nil
}

func (n *Network) checkInputs(x [][]float64) error {
	if len(n.Layers) == 0 {
		return ErrNotFitted
	}
	want := n.Inputs()
	for i, row := range x {
		if len(row) != want {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), want)
		}
	}
	return nil
}

// scoreBatch returns summed cross-entropy and the number of correct argmax hits.
func scoreBatch(probs *mat.Dense, y []int) (float64, int) {
	var loss float64
	var correct int
	for i, cls := range y {
		row := probs.RawRowView(i)
		loss -= math.Log(math.Max(row[cls], probFloor))
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		if best == cls {
			correct++
		}
	}
	return loss, correct
}

func oneHot(y []int, classes int) *mat.Dense {
	m := mat.NewDense(len(y), classes, nil)
	for i, c := range y {
		m.Set(i, c, 1)
	}
	return m
}
