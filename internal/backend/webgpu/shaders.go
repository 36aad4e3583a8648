//go:build windows

package webgpu

// WGSL compute shaders for the neighborhood operators.
// Using string constants instead of embed for simplicity.

// workgroupSize is the default number of threads per workgroup.
const workgroupSize = 256

// flatIndexWGSL recovers the flat invocation index from a 2D dispatch grid.
const flatIndexWGSL = `
fn flat_index(gid: vec3<u32>, groups_x: i32) -> i32 {
    return i32(gid.x + gid.y * u32(groups_x) * 256u);
}
`

// addShader performs element-wise addition: result = a + b.
const addShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    total: i32,
    groups_x: i32,
}
@group(0) @binding(3) var<uniform> params: Params;
` + flatIndexWGSL + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = flat_index(gid, params.groups_x);
    if (idx < params.total) {
        result[idx] = a[idx] + b[idx];
    }
}
`

// neighborhoodParamsWGSL mirrors neighborhoodParams on the host side.
const neighborhoodParamsWGSL = `
struct Params {
    n: i32, c: i32, h: i32, w: i32,
    oh: i32, ow: i32, kh: i32, kw: i32,
    stride_h: i32, stride_w: i32, pad_h: i32, pad_w: i32,
    dil_h: i32, dil_w: i32, cw: i32, mode: i32,
    total: i32,
    groups_x: i32,
}
` + flatIndexWGSL + `
// tap maps a padded coordinate to an input coordinate, or -1 when the tap
// contributes nothing. mode 1 reflects about the border.
fn tap(i: i32, size: i32, mode: i32) -> i32 {
    if (i >= 0 && i < size) {
        return i;
    }
    if (mode != 1) {
        return -1;
    }
    var r = -i;
    if (i >= size) {
        r = 2 * (size - 1) - i;
    }
    if (r < 0 || r >= size) {
        return -1;
    }
    return r;
}
`

// subtraction2ForwardShader: top_data[n,c,k,h*OW+w] = centre(in1) - tap(in2).
const subtraction2ForwardShader = `
@group(0) @binding(0) var<storage, read> bottom1: array<f32>;
@group(0) @binding(1) var<storage, read> bottom2: array<f32>;
@group(0) @binding(2) var<storage, read_write> top_data: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + neighborhoodParamsWGSL + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let index = flat_index(gid, params.groups_x);
    if (index >= params.total) {
        return;
    }
    let n = index / params.c / params.oh / params.ow;
    let c = (index / params.oh / params.ow) % params.c;
    let h = (index / params.ow) % params.oh;
    let w = index % params.ow;

    let plane = (n * params.c + c) * params.h * params.w;
    let h_center = -params.pad_h + h * params.stride_h + (params.kh - 1) / 2 * params.dil_h;
    let w_center = -params.pad_w + w * params.stride_w + (params.kw - 1) / 2 * params.dil_w;
    var center: f32 = 0.0;
    if (h_center >= 0 && h_center < params.h && w_center >= 0 && w_center < params.w) {
        center = bottom1[plane + h_center * params.w + w_center];
    }

    let ksize = params.kh * params.kw;
    for (var kh: i32 = 0; kh < params.kh; kh = kh + 1) {
        let h_in = -params.pad_h + h * params.stride_h + kh * params.dil_h;
        for (var kw: i32 = 0; kw < params.kw; kw = kw + 1) {
            let w_in = -params.pad_w + w * params.stride_w + kw * params.dil_w;
            let off = ((n * params.c + c) * ksize + kh * params.kw + kw) * params.oh * params.ow + h * params.ow + w;
            if (h_in >= 0 && h_in < params.h && w_in >= 0 && w_in < params.w) {
                top_data[off] = center - bottom2[plane + h_in * params.w + w_in];
            } else {
                top_data[off] = center;
            }
        }
    }
}
`

// subtraction2Input1Shader gathers the summed gradient of every output
// location whose window centre is this pixel.
const subtraction2Input1Shader = `
@group(0) @binding(0) var<storage, read> top_diff: array<f32>;
@group(0) @binding(1) var<storage, read_write> bottom_diff: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + neighborhoodParamsWGSL + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let index = flat_index(gid, params.groups_x);
    if (index >= params.total) {
        return;
    }
    let n = index / params.c / params.h / params.w;
    let c = (index / params.h / params.w) % params.c;
    let h = (index / params.w) % params.h;
    let w = index % params.w;

    var value: f32 = 0.0;
    let hs = h + params.pad_h - (params.kh - 1) / 2 * params.dil_h;
    let ws = w + params.pad_w - (params.kw - 1) / 2 * params.dil_w;
    if (hs % params.stride_h == 0 && ws % params.stride_w == 0) {
        let h_out = hs / params.stride_h;
        let w_out = ws / params.stride_w;
        if (h_out >= 0 && h_out < params.oh && w_out >= 0 && w_out < params.ow) {
            let ksize = params.kh * params.kw;
            for (var k: i32 = 0; k < ksize; k = k + 1) {
                value = value + top_diff[((n * params.c + c) * ksize + k) * params.oh * params.ow + h_out * params.ow + w_out];
            }
        }
    }
    bottom_diff[index] = value;
}
`

// subtraction2Input2Shader gathers the negated gradient of every window tap
// that read this pixel.
const subtraction2Input2Shader = `
@group(0) @binding(0) var<storage, read> top_diff: array<f32>;
@group(0) @binding(1) var<storage, read_write> bottom_diff: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + neighborhoodParamsWGSL + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let index = flat_index(gid, params.groups_x);
    if (index >= params.total) {
        return;
    }
    let n = index / params.c / params.h / params.w;
    let c = (index / params.h / params.w) % params.c;
    let h = (index / params.w) % params.h;
    let w = index % params.w;

    let ksize = params.kh * params.kw;
    var value: f32 = 0.0;
    for (var kh: i32 = 0; kh < params.kh; kh = kh + 1) {
        let hs = h + params.pad_h - kh * params.dil_h;
        if (hs % params.stride_h != 0) {
            continue;
        }
        let h_out = hs / params.stride_h;
        if (h_out < 0 || h_out >= params.oh) {
            continue;
        }
        for (var kw: i32 = 0; kw < params.kw; kw = kw + 1) {
            let ws = w + params.pad_w - kw * params.dil_w;
            if (ws % params.stride_w != 0) {
                continue;
            }
            let w_out = ws / params.stride_w;
            if (w_out < 0 || w_out >= params.ow) {
                continue;
            }
            value = value - top_diff[((n * params.c + c) * ksize + kh * params.kw + kw) * params.oh * params.ow + h_out * params.ow + w_out];
        }
    }
    bottom_diff[index] = value;
}
`

// aggregationForwardShader: top_data[n,c,h,w] = sum_k weight[n,c%CW,k,h*OW+w] * tap(x).
const aggregationForwardShader = `
@group(0) @binding(0) var<storage, read> bottom: array<f32>;
@group(0) @binding(1) var<storage, read> weight: array<f32>;
@group(0) @binding(2) var<storage, read_write> top_data: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + neighborhoodParamsWGSL + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let index = flat_index(gid, params.groups_x);
    if (index >= params.total) {
        return;
    }
    let n = index / params.c / params.oh / params.ow;
    let c = (index / params.oh / params.ow) % params.c;
    let h = (index / params.ow) % params.oh;
    let w = index % params.ow;

    let plane = (n * params.c + c) * params.h * params.w;
    let ksize = params.kh * params.kw;
    let wbase = (n * params.cw + c % params.cw) * ksize;
    var value: f32 = 0.0;
    for (var kh: i32 = 0; kh < params.kh; kh = kh + 1) {
        let h_in = tap(-params.pad_h + h * params.stride_h + kh * params.dil_h, params.h, params.mode);
        if (h_in < 0) {
            continue;
        }
        for (var kw: i32 = 0; kw < params.kw; kw = kw + 1) {
            let w_in = tap(-params.pad_w + w * params.stride_w + kw * params.dil_w, params.w, params.mode);
            if (w_in < 0) {
                continue;
            }
            let woff = (wbase + kh * params.kw + kw) * params.oh * params.ow + h * params.ow + w;
            value = value + weight[woff] * bottom[plane + h_in * params.w + w_in];
        }
    }
    top_data[index] = value;
}
`

// aggregationInputShader gathers weighted output gradients for every
// padded position that resolves to this pixel (up to three per axis under
// reflection).
const aggregationInputShader = `
@group(0) @binding(0) var<storage, read> top_diff: array<f32>;
@group(0) @binding(1) var<storage, read> weight: array<f32>;
@group(0) @binding(2) var<storage, read_write> bottom_diff: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + neighborhoodParamsWGSL + `
fn candidate(i: i32, size: i32, mode: i32, which: i32) -> i32 {
    if (which == 0) {
        return i;
    }
    if (mode != 1) {
        return -1000000;
    }
    if (which == 1 && i > 0) {
        return -i;
    }
    if (which == 2 && i < size - 1) {
        return 2 * (size - 1) - i;
    }
    return -1000000;
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let index = flat_index(gid, params.groups_x);
    if (index >= params.total) {
        return;
    }
    let n = index / params.c / params.h / params.w;
    let c = (index / params.h / params.w) % params.c;
    let h = (index / params.w) % params.h;
    let w = index % params.w;

    let ksize = params.kh * params.kw;
    let wbase = (n * params.cw + c % params.cw) * ksize;
    let tbase = (n * params.c + c) * params.oh * params.ow;
    var value: f32 = 0.0;
    for (var ch: i32 = 0; ch < 3; ch = ch + 1) {
        let vh = candidate(h, params.h, params.mode, ch);
        if (vh == -1000000) {
            continue;
        }
        for (var cv: i32 = 0; cv < 3; cv = cv + 1) {
            let vw = candidate(w, params.w, params.mode, cv);
            if (vw == -1000000) {
                continue;
            }
            for (var kh: i32 = 0; kh < params.kh; kh = kh + 1) {
                let hs = vh + params.pad_h - kh * params.dil_h;
                if (hs % params.stride_h != 0) {
                    continue;
                }
                let h_out = hs / params.stride_h;
                if (h_out < 0 || h_out >= params.oh) {
                    continue;
                }
                for (var kw: i32 = 0; kw < params.kw; kw = kw + 1) {
                    let ws = vw + params.pad_w - kw * params.dil_w;
                    if (ws % params.stride_w != 0) {
                        continue;
                    }
                    let w_out = ws / params.stride_w;
                    if (w_out < 0 || w_out >= params.ow) {
                        continue;
                    }
                    let pos = h_out * params.ow + w_out;
                    value = value + weight[(wbase + kh * params.kw + kw) * params.oh * params.ow + pos] * top_diff[tbase + pos];
                }
            }
        }
    }
    bottom_diff[index] = value;
}
`

// aggregationWeightShader sums gradient times input tap over the channels
// sharing each weight element.
const aggregationWeightShader = `
@group(0) @binding(0) var<storage, read> top_diff: array<f32>;
@group(0) @binding(1) var<storage, read> bottom: array<f32>;
@group(0) @binding(2) var<storage, read_write> weight_diff: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + neighborhoodParamsWGSL + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let index = flat_index(gid, params.groups_x);
    if (index >= params.total) {
        return;
    }
    let ksize = params.kh * params.kw;
    let n = index / params.cw / ksize / params.oh / params.ow;
    let cw = (index / ksize / params.oh / params.ow) % params.cw;
    let k = (index / params.oh / params.ow) % ksize;
    let h = (index / params.ow) % params.oh;
    let w = index % params.ow;
    let kh = k / params.kw;
    let kw = k % params.kw;

    var value: f32 = 0.0;
    let h_in = tap(-params.pad_h + h * params.stride_h + kh * params.dil_h, params.h, params.mode);
    let w_in = tap(-params.pad_w + w * params.stride_w + kw * params.dil_w, params.w, params.mode);
    if (h_in >= 0 && w_in >= 0) {
        for (var c: i32 = cw; c < params.c; c = c + params.cw) {
            let plane = n * params.c + c;
            value = value + top_diff[(plane * params.oh + h) * params.ow + w] * bottom[(plane * params.h + h_in) * params.w + w_in];
        }
    }
    weight_diff[index] = value;
}
`
