package capture

// Linux sessions run either X11 or Wayland, so XDG_SESSION_TYPE decides.
const sessionScoped = true
