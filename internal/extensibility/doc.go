// Package extensibility provides simulated hardware for the scan loop: a
// scripted digital and analog port, a hand-fed analog stream and sound
// trigger sinks. The command-line tool and the tests run on these.
package extensibility
