// Package factory builds pluggable modules, such as metrics sinks, from
// configuration entries of the form
//
//	sinks:
//	  - type: kpi
//	    conf:
//	      sqlite_path: /var/lib/roaming/kpi.db
//
// A Registry maps each type name to a constructor. Constructors decode
// their raw settings with Decode, which follows json tags and accepts the
// string values produced by environment overrides.
package factory
