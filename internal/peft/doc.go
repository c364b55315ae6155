// Package peft converts adapter weight files trained with the HuggingFace
// PEFT library into this framework's naming and orientation convention.
//
// PEFT stores each adapted layer as a "<path>.lora_A.weight" /
// "<path>.lora_B.weight" pair in a SafeTensors file, usually alongside an
// adapter_config.json describing rank, alpha and target modules. The
// converter pairs the keys, classifies each base path into an architectural
// role by a configurable substring table, reorients factors whose rank
// dimension is swapped, and writes the result as a SafeTensors file keyed
// "<prefix>.<path>.lora_A" / "<prefix>.<path>.lora_B".
//
// Classification is best-effort by construction: pattern lists are
// architecture specific, and an unmatched path degrades to the generic
// block prefix instead of failing.
package peft
