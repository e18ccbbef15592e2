package frame

// PCMFrame is one block of 32-bit float PCM samples, interleaved by channel
// when more than one channel is present.
//
// Frames are transient: produced, conditioned, and transmitted within a single
// loop iteration, never retained across iterations.
type PCMFrame []float32

// Size is the number of samples in a conditioned frame, and therefore the
// number of samples carried by every outgoing datagram. After conditioning a
// frame is always mono and always exactly this long; this is the sole wire
// contract with the visualizer.
const Size = 1024
