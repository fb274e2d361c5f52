//go:build endpoint_close_test

package feature

// EndpointCloseTest assigns an endpoint owner at init and exercises the close path.
const EndpointCloseTest = true
