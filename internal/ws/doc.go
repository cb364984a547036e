// Package ws implements the websocket layer of thrustbench-server.
//
// Two endpoints share one Hub:
//
//	/ws/stand     — the test stand firmware (or cmd/simulator). Reading
//	                frames flow in and are forwarded to the ingest channel;
//	                control commands flow out. A new connection replaces any
//	                existing stand link.
//	/ws/dashboard — UI clients. Every outbound event is fanned out:
//	                {"event": "reading"|"status"|"stand_status"|
//	                 "test_complete"|"calibration", "data": {...}}
//
// The Hub implements session.Events (broadcast side) and
// session.CommandSink (stand side). Slow dashboard clients are disconnected
// rather than allowed to backpressure the ingest path.
package ws
