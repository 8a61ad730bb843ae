package lower

import "github.com/raymyers/lowgen/pkg/vcode"

// The flags-pairing protocol. Condition flags are a side channel with no
// Value identity: a flag-producing instruction and every instruction that
// reads those flags must reach the output stream contiguously, because
// downstream phases are free to reorder independent instructions. Pairing is
// therefore done at the single point of emission: the only way to obtain a
// consumer's result is WithFlags, which appends producer and consumers
// back-to-back with nothing in between.

// FlagsProducer wraps an instruction whose execution sets condition flags,
// optionally also yielding an ordinary result in Result.
type FlagsProducer struct {
	Instr  vcode.Instr
	Result vcode.Reg // NoReg for flags-only producers such as cmp/tst
}

// FlagsConsumer wraps an instruction that reads the current condition flags
// and yields Result. A chaining consumer (Chains=true) also produces flags
// for the next consumer in the same pairing, e.g. add-with-carry spanning
// register-group slots.
type FlagsConsumer struct {
	Instr  vcode.Instr
	Result vcode.Reg
	Chains bool
}

// maxConsumers bounds one pairing; wide shifts need up to four selections
// off a single test.
const maxConsumers = 4

// WithFlags emits the producer immediately followed by each consumer, in
// order, and returns the consumers' results. Every consumer after a
// non-chaining one still reads the original producer's flags, so only
// chaining consumers may be followed by consumers that need fresh flags.
func (c *Ctx) WithFlags(p FlagsProducer, consumers ...FlagsConsumer) []vcode.Reg {
	if len(consumers) == 0 || len(consumers) > maxConsumers {
		c.Errf("WithFlags: %d consumers", len(consumers))
		return nil
	}
	if p.Instr == nil {
		c.Errf("WithFlags: nil producer")
		return nil
	}
	c.Emit(p.Instr)
	results := make([]vcode.Reg, len(consumers))
	for i, cons := range consumers {
		if cons.Instr == nil {
			c.Errf("WithFlags: nil consumer %d", i)
			return nil
		}
		c.Emit(cons.Instr)
		results[i] = cons.Result
	}
	return results
}
