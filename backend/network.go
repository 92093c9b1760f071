package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/rand"
)

// Topology of the evaluation network: one-hot board features in, a single
// tanh-squashed score in [-1, 1] out.
const (
	hidden1Size = 128
	hidden2Size = 64

	learningRate = 0.001
	adamBeta1    = 0.9
	adamBeta2    = 0.999
	adamEpsilon  = 1e-8
)

type activationFn interface {
	Sigma(x float64) float64
	SigmaPrime(x float64) float64
}

type reluActivation struct{}

func (reluActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func (reluActivation) SigmaPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

type tanhActivation struct{}

func (tanhActivation) Sigma(x float64) float64 { return math.Tanh(x) }

func (tanhActivation) SigmaPrime(x float64) float64 {
	y := math.Tanh(x)
	return 1 - y*y
}

type Matrix struct {
	Data []float64
	Rows int
	Cols int
}

func NewMatrix(rows, cols int) Matrix {
	return Matrix{Data: make([]float64, rows*cols), Rows: rows, Cols: cols}
}

// Column-major layout.
func (m *Matrix) Get(row, col int) float64 { return m.Data[col*m.Rows+row] }

// Gradient accumulates one partial derivative and applies it with Adam.
type Gradient struct {
	Value float64
	M1    float64
	M2    float64
}

func (g *Gradient) Calculate() float64 {
	if g.Value == 0 {
		return 0
	}
	g.M1 = g.M1*adamBeta1 + g.Value*(1-adamBeta1)
	g.M2 = g.M2*adamBeta2 + (g.Value*g.Value)*(1-adamBeta2)
	return learningRate * g.M1 / (math.Sqrt(g.M2) + adamEpsilon)
}

type Gradients struct {
	Data []Gradient
	Rows int
	Cols int
}

func NewGradients(rows, cols int) Gradients {
	return Gradients{Data: make([]Gradient, cols*rows), Rows: rows, Cols: cols}
}

func (g *Gradients) Add(row, col int, delta float64) {
	g.Data[col*g.Rows+row].Value += delta
}

func (g *Gradients) Apply(m *Matrix) {
	for i := range g.Data {
		m.Data[i] -= g.Data[i].Calculate()
		g.Data[i].Value = 0
	}
}

func initUniform(rnd *rand.Rand, data []float64, variance float64) {
	var uniformVariance = 1.0 / 12
	var scale = math.Sqrt(variance / uniformVariance)
	for i := range data {
		data[i] = (rnd.Float64() - 0.5) * scale
	}
}

type Neuron struct {
	Activation float64
	Error      float64
	Prime      float64
}

type Layer struct {
	activationFn activationFn
	weights      Matrix
	biases       Matrix
	wGradients   Gradients
	bGradients   Gradients
}

func newLayer(inputSize, outputSize int, fn activationFn) *Layer {
	return &Layer{
		activationFn: fn,
		weights:      NewMatrix(outputSize, inputSize),
		biases:       NewMatrix(outputSize, 1),
		wGradients:   NewGradients(outputSize, inputSize),
		bGradients:   NewGradients(outputSize, 1),
	}
}

func (l *Layer) initWeightsReLU(rnd *rand.Rand) *Layer {
	initUniform(rnd, l.weights.Data, 2.0/float64(l.weights.Cols))
	return l
}

func (l *Layer) initWeightsXavier(rnd *rand.Rand) *Layer {
	initUniform(rnd, l.weights.Data, 2.0/float64(l.weights.Cols+l.weights.Rows))
	return l
}

// Forward fills out from either the previous layer's neurons or raw features.
// Exactly one of prev and features is non-nil.
func (l *Layer) Forward(out []Neuron, prev []Neuron, features []float64) {
	for outputIndex := range out {
		var x = l.biases.Data[outputIndex]
		for inputIndex := range prev {
			x += l.weights.Get(outputIndex, inputIndex) * prev[inputIndex].Activation
		}
		for inputIndex := range features {
			if features[inputIndex] != 0 {
				x += l.weights.Get(outputIndex, inputIndex) * features[inputIndex]
			}
		}
		n := &out[outputIndex]
		n.Activation = l.activationFn.Sigma(x)
		n.Prime = l.activationFn.SigmaPrime(x)
	}
}

// Backward propagates out's errors into prev and accumulates gradients.
func (l *Layer) Backward(out []Neuron, prev []Neuron, features []float64) {
	for inputIndex := range prev {
		prev[inputIndex].Error = 0
	}
	for outputIndex := range out {
		n := &out[outputIndex]
		var x = n.Error * n.Prime
		for inputIndex := range prev {
			prev[inputIndex].Error += l.weights.Get(outputIndex, inputIndex) * x
		}
	}

	for outputIndex := range out {
		n := &out[outputIndex]
		var x = n.Error * n.Prime
		l.bGradients.Add(outputIndex, 0, x)

		for inputIndex := range prev {
			l.wGradients.Add(outputIndex, inputIndex, x*prev[inputIndex].Activation)
		}
		for inputIndex := range features {
			if features[inputIndex] != 0 {
				l.wGradients.Add(outputIndex, inputIndex, x*features[inputIndex])
			}
		}
	}
}

func (l *Layer) ApplyGradients() {
	l.wGradients.Apply(&l.weights)
	l.bGradients.Apply(&l.biases)
}

// forwardState holds per-call activation buffers so forward passes by
// concurrent readers never share neuron state.
type forwardState struct {
	hidden1 []Neuron
	hidden2 []Neuron
	output  []Neuron
}

func newForwardState() *forwardState {
	return &forwardState{
		hidden1: make([]Neuron, hidden1Size),
		hidden2: make([]Neuron, hidden2Size),
		output:  make([]Neuron, 1),
	}
}

// Network is the evaluation net: 768 -> 128 -> 64 -> 1 with ReLU hidden
// layers and a tanh output.
type Network struct {
	layer1 *Layer
	layer2 *Layer
	layer3 *Layer

	// dedicated buffers for the training path; backprop needs the
	// activations and primes of the forward pass that produced the error
	trainState *forwardState
}

func NewNetwork(rnd *rand.Rand) *Network {
	return &Network{
		layer1:     newLayer(featureSize, hidden1Size, reluActivation{}).initWeightsReLU(rnd),
		layer2:     newLayer(hidden1Size, hidden2Size, reluActivation{}).initWeightsReLU(rnd),
		layer3:     newLayer(hidden2Size, 1, tanhActivation{}).initWeightsXavier(rnd),
		trainState: newForwardState(),
	}
}

func (n *Network) forward(fs *forwardState, features []float64) float64 {
	n.layer1.Forward(fs.hidden1, nil, features)
	n.layer2.Forward(fs.hidden2, fs.hidden1, nil)
	n.layer3.Forward(fs.output, fs.hidden2, nil)
	return fs.output[0].Activation
}

// TrainStep runs one forward pass, backpropagates the squared error against
// target and applies one Adam step. Returns the loss before the update.
func (n *Network) TrainStep(features []float64, target float64) float64 {
	fs := n.trainState
	predicted := n.forward(fs, features)

	fs.output[0].Error = 2 * (predicted - target)
	n.layer3.Backward(fs.output, fs.hidden2, nil)
	n.layer2.Backward(fs.hidden2, fs.hidden1, nil)
	n.layer1.Backward(fs.hidden1, nil, features)

	n.layer1.ApplyGradients()
	n.layer2.ApplyGradients()
	n.layer3.ApplyGradients()

	diff := predicted - target
	return diff * diff
}

// Binary weight artifact layout, all little-endian:
//   - magic: 'C', 'E', major version, minor version
//   - input size, output size, hidden layer count, hidden sizes (uint32 each)
//   - per layer: all weights (column-major), then all biases, as float32
var networkMagic = [4]byte{67, 69, 1, 0}

var errBadNetworkFile = errors.New("not a recognized network file")

func (n *Network) Encode(w io.Writer) error {
	if _, err := w.Write(networkMagic[:]); err != nil {
		return err
	}
	header := make([]byte, 4*5)
	binary.LittleEndian.PutUint32(header[0:], featureSize)
	binary.LittleEndian.PutUint32(header[4:], 1)
	binary.LittleEndian.PutUint32(header[8:], 2)
	binary.LittleEndian.PutUint32(header[12:], hidden1Size)
	binary.LittleEndian.PutUint32(header[16:], hidden2Size)
	if _, err := w.Write(header); err != nil {
		return err
	}
	for _, layer := range []*Layer{n.layer1, n.layer2, n.layer3} {
		if err := writeSlice(w, layer.weights.Data); err != nil {
			return err
		}
		if err := writeSlice(w, layer.biases.Data); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) Decode(r io.Reader) error {
	header := make([]byte, 4+4*5)
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	if header[0] != networkMagic[0] || header[1] != networkMagic[1] ||
		header[2] != networkMagic[2] || header[3] != networkMagic[3] {
		return errBadNetworkFile
	}
	inputs := binary.LittleEndian.Uint32(header[4:])
	outputs := binary.LittleEndian.Uint32(header[8:])
	hiddenLayers := binary.LittleEndian.Uint32(header[12:])
	if inputs != featureSize || outputs != 1 || hiddenLayers != 2 {
		return fmt.Errorf("%w: topology %d/%d/%d", errBadNetworkFile, inputs, outputs, hiddenLayers)
	}
	h1 := binary.LittleEndian.Uint32(header[16:])
	h2 := binary.LittleEndian.Uint32(header[20:])
	if h1 != hidden1Size || h2 != hidden2Size {
		return fmt.Errorf("%w: hidden sizes %d/%d", errBadNetworkFile, h1, h2)
	}
	for _, layer := range []*Layer{n.layer1, n.layer2, n.layer3} {
		if err := readSlice(r, layer.weights.Data); err != nil {
			return err
		}
		if err := readSlice(r, layer.biases.Data); err != nil {
			return err
		}
	}
	return nil
}

func writeSlice(w io.Writer, data []float64) error {
	buf := make([]byte, 4*len(data))
	for i := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(data[i])))
	}
	_, err := w.Write(buf)
	return err
}

func readSlice(r io.Reader, data []float64) error {
	buf := make([]byte, 4*len(data))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range data {
		data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return nil
}
