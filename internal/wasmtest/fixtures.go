// Package wasmtest holds hand-assembled WebAssembly guest binaries shared
// across package tests that need a real compiled module without a wasm
// toolchain available in this environment. Each fixture is built directly
// from the WASM binary format (magic/version, type/import/function/
// memory/export/code sections).
package wasmtest

// DenyIfEmpty exports linear memory ("memory") and a policy_check
// function whose body is `local.get 1; i32.eqz; end` — it returns 1
// (deny) when the payload length (the second parameter) is zero, and 0
// (allow) otherwise. Declares one page (64KiB) of memory.
var DenyIfEmpty = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic "\0asm"
	0x01, 0x00, 0x00, 0x00, // version 1

	// type section: id=1, size=7
	0x01, 0x07,
	0x01,                               // 1 type
	0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F, // func (i32,i32) -> i32

	// function section: id=3, size=2
	0x03, 0x02,
	0x01, 0x00, // 1 function, uses type 0

	// memory section: id=5, size=3
	0x05, 0x03,
	0x01, 0x00, 0x01, // 1 memory, flags=0 (min only), min=1 page

	// export section: id=7, size=25
	0x07, 0x19,
	0x02, // 2 exports
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" -> mem 0
	0x0C, 'p', 'o', 'l', 'i', 'c', 'y', '_', 'c', 'h', 'e', 'c', 'k', 0x00, 0x00, // "policy_check" -> func 0

	// code section: id=10, size=7
	0x0A, 0x07,
	0x01,       // 1 function body
	0x05,       // body size
	0x00,       // 0 locals
	0x20, 0x01, // local.get 1 (len)
	0x45,       // i32.eqz
	0x0B,       // end
}

// AlwaysAllow exports memory and a policy_check that unconditionally
// returns 0 (allow), ignoring its arguments.
var AlwaysAllow = []byte{
	0x00, 0x61, 0x73, 0x6D,
	0x01, 0x00, 0x00, 0x00,

	0x01, 0x07,
	0x01,
	0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F,

	0x03, 0x02,
	0x01, 0x00,

	0x05, 0x03,
	0x01, 0x00, 0x01,

	0x07, 0x19,
	0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0C, 'p', 'o', 'l', 'i', 'c', 'y', '_', 'c', 'h', 'e', 'c', 'k', 0x00, 0x00,

	0x0A, 0x06,
	0x01,
	0x04,
	0x00,       // 0 locals
	0x41, 0x00, // i32.const 0
	0x0B,       // end
}

// HostReject exports memory and a policy_check that imports
// env.host_reject and always calls it with a fixed code/message, proving
// that a guest-triggered reject surfaces as a trap (and therefore a
// deny) to the caller.
var HostReject = []byte{
	0x00, 0x61, 0x73, 0x6D,
	0x01, 0x00, 0x00, 0x00,

	// type section: id=1, size=13
	0x01, 0x0D,
	0x02,                               // 2 types
	0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F, // type0: policy_check (i32,i32)->i32
	0x60, 0x03, 0x7F, 0x7F, 0x7F, 0x00, // type1: host_reject (i32,i32,i32)->()

	// import section: id=2, size=19
	0x02, 0x13,
	0x01, // 1 import
	0x03, 'e', 'n', 'v', // module "env"
	0x0B, 'h', 'o', 's', 't', '_', 'r', 'e', 'j', 'e', 'c', 't', // field "host_reject"
	0x00, 0x01, // kind=func, type index 1

	// function section: id=3, size=2
	0x03, 0x02,
	0x01, 0x00, // 1 defined function, uses type 0 (policy_check)

	// memory section: id=5, size=3
	0x05, 0x03,
	0x01, 0x00, 0x01,

	// export section: id=7, size=25
	0x07, 0x19,
	0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0C, 'p', 'o', 'l', 'i', 'c', 'y', '_', 'c', 'h', 'e', 'c', 'k', 0x00, 0x01, // func index 1 (0 is the import)

	// code section: id=10, size=13
	0x0A, 0x0D,
	0x01, // 1 function body
	0x0B, // body size = 11
	0x00, // 0 locals
	0x41, 0x07, // i32.const 7 (reject code)
	0x41, 0x00, // i32.const 0 (msg ptr)
	0x41, 0x00, // i32.const 0 (msg len)
	0x10, 0x00, // call 0 (host_reject)
	0x00,       // unreachable
	0x0B,       // end
}
