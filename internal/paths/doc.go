// Provides platform-appropriate paths for the builder daemon.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. The daemon name "emberd" is used as the subdirectory
// under each base path.
package paths
