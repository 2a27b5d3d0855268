package benchmarks

import (
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/comalice/rtfsm/internal/primitives"
)

func BenchmarkDefinitionValidate(b *testing.B) {
	for _, rows := range []int{8, 128, 1024} {
		def := GenChainDefinition(rows, 1000)
		limits := primitives.Limits{DigitalChannels: 32, AnalogInChannels: 8, AnalogOutChannels: 2}
		b.Run(fmt.Sprintf("rows=%d", rows), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if err := def.ValidateAgainst(limits); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDefinitionClone(b *testing.B) {
	def := GenChainDefinition(1024, 1000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = def.Clone()
	}
}

func BenchmarkComputeVersion(b *testing.B) {
	def := GenChainDefinition(1024, 1000)
	for i := 0; i < b.N; i++ {
		_ = primitives.ComputeVersion(def)
	}
}

func BenchmarkDefinitionYAMLDecode(b *testing.B) {
	data := GenDefinitionYAML(256)
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		var def primitives.Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			b.Fatal(err)
		}
	}
}
