package jsonfas

// Version is reported in the default account service User-Agent.
const Version = "0.4.0"
