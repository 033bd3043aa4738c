package procio

import "encoding/binary"

// hostEndian is little-endian on every architecture Linux's pagemap/
// kpageflags interfaces are documented for (x86-64, arm64); there is no
// portable way to ask the kernel for its native order for these files, so
// we fix it rather than add a runtime detection path nothing else needs.
var hostEndian = binary.LittleEndian
