package graph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowgraph/calculator"
	_ "github.com/c360/flowgraph/calculators/identity"
	_ "github.com/c360/flowgraph/calculators/jsonfilter"
	_ "github.com/c360/flowgraph/calculators/jsonmap"
	"github.com/c360/flowgraph/graph"
	"github.com/c360/flowgraph/graphconfig"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/timestamp"
)

// imageProducer and tensorConsumer exist only to exercise graph.New's
// producer/consumer type-compatibility check: a real calculator pair would
// never declare incompatible types on the same stream.
type imageProducer struct{}

func (imageProducer) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Outputs: []calculator.PortSpec{{Tag: "OUT", TypeName: "Image"}},
	}
}
func (imageProducer) Open(ctx *calculator.Context) error    { return nil }
func (imageProducer) Process(ctx *calculator.Context) error { return nil }
func (imageProducer) Close(ctx *calculator.Context) error   { return nil }

type tensorConsumer struct{}

func (tensorConsumer) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs: []calculator.PortSpec{{Tag: "IN", TypeName: "Tensor"}},
	}
}
func (tensorConsumer) Open(ctx *calculator.Context) error    { return nil }
func (tensorConsumer) Process(ctx *calculator.Context) error { return nil }
func (tensorConsumer) Close(ctx *calculator.Context) error   { return nil }

func init() {
	packet.Register[string]("Image")
	packet.Register[int]("Tensor")
	calculator.Register("ImageProducerCalculator", func() calculator.Calculator { return imageProducer{} })
	calculator.Register("TensorConsumerCalculator", func() calculator.Calculator { return tensorConsumer{} })
}

func TestGraph_PassThroughEndToEnd(t *testing.T) {
	cfg, err := graphconfig.Parse([]byte(`
name: pass-through
nodes:
  - name: relay
    calculator: PassThroughCalculator
    inputs:
      IN: in
    outputs:
      OUT: out
`))
	require.NoError(t, err)

	g, err := graph.New(cfg)
	require.NoError(t, err)

	var observed []string
	g.ObservePackets(func(streamName string, p packet.Packet) {
		observed = append(observed, streamName)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = graph.RunToCompletion(ctx, g,
		[]graph.TimedPacket{{Stream: "in", Packet: packet.Of(timestamp.T(1), "hello")}},
		[]string{"in"},
		2*time.Second,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, observed)
}

func TestGraph_JSONMapThenFilterPipeline(t *testing.T) {
	cfg, err := graphconfig.Parse([]byte(`
name: map-filter
nodes:
  - name: mapper
    calculator: JSONMapCalculator
    inputs:
      IN: raw
    outputs:
      OUT: mapped
  - name: filter
    calculator: JSONFilterCalculator
    inputs:
      IN: mapped
    outputs:
      OUT: filtered
`))
	require.NoError(t, err)

	g, err := graph.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = graph.RunToCompletion(ctx, g,
		[]graph.TimedPacket{{Stream: "raw", Packet: packet.Of(timestamp.T(1), map[string]any{"level": 1})}},
		[]string{"raw"},
		2*time.Second,
	)
	require.NoError(t, err)
}

func TestGraph_UnknownCalculatorFailsAtNew(t *testing.T) {
	cfg, err := graphconfig.Parse([]byte(`
name: bad-graph
nodes:
  - name: n1
    calculator: NoSuchCalculatorEver
`))
	require.NoError(t, err)

	_, err = graph.New(cfg)
	require.Error(t, err)
}

func TestGraph_ProducerConsumerTypeMismatchFailsAtNew(t *testing.T) {
	cfg, err := graphconfig.Parse([]byte(`
name: type-mismatch
nodes:
  - name: producer
    calculator: ImageProducerCalculator
    outputs:
      OUT: mid
  - name: consumer
    calculator: TensorConsumerCalculator
    inputs:
      IN: mid
`))
	require.NoError(t, err)

	_, err = graph.New(cfg)
	require.Error(t, err)
}

func TestGraph_MissingRequiredInputPortFailsAtNew(t *testing.T) {
	cfg, err := graphconfig.Parse([]byte(`
name: missing-port
nodes:
  - name: relay
    calculator: PassThroughCalculator
    outputs:
      OUT: out
`))
	require.NoError(t, err)

	_, err = graph.New(cfg)
	require.Error(t, err)
}
