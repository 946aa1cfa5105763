// Package aisgateway is the root of a small AIS-to-NMEA-0183 telemetry
// gateway: it subscribes to a remote vessel-position stream, decodes
// each report, re-encodes it as maritime-standard NMEA-0183 sentences,
// and fans those sentences out to a TCP broadcast server and a UDP
// datagram emitter.
//
// # Pipeline
//
//	upstream (C4) → vessel (C3 decode) → nmea (C2 encode) → service (C7)
//	                                                            ├─→ broadcast (C5)
//	                                                            └─→ datagram (C6)
//
// bitbuf (C1) underlies the NMEA encoder's bit packing and 6-bit
// armoring. service.Controller owns the lifecycle of C4/C5/C6, the
// bounded hand-off queue between C4 and the encode/dispatch pipeline,
// and the statistics/health rollup served by the control package's
// HTTP surface.
//
// # Packages
//
//   - bitbuf: bit-vector packing, 6-bit ASCII armoring, NMEA checksum
//   - nmea: AIS type 1/5/18/24A/24B payload encoding and sentence framing
//   - vessel: normalized vessel record and upstream-frame decoder
//   - upstream: upstream streaming client (C4)
//   - broadcast: TCP stream broadcast server (C5)
//   - datagram: UDP datagram emitter (C6)
//   - service: service controller (C7) — lifecycle, pipeline, statistics
//   - control: HTTP control surface (start/stop, bounding-box replace, status, health)
//   - config: configuration surface and hot bounding-box replacement
//   - component: shared lifecycle/discovery contracts
//   - metric: Prometheus metrics core and per-component registry
//   - health: health status tracking and aggregation
//   - errors: classified error wrapping
//   - pkg/buffer, pkg/security, pkg/tlsutil, pkg/retry, pkg/timestamp,
//     pkg/worker: generic infrastructure shared across the above
//
// See DESIGN.md for how each package is grounded and SPEC_FULL.md for
// the full requirements this module implements.
package aisgateway
