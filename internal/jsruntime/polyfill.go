package jsruntime

// promisePolyfill implements Promises/A+ resolution entirely in terms of
// two Go-exposed primitives: __schedule (push a microtask) and
// __setTimeout/__clearTimeout (macrotasks). goja's own engine supplies
// everything else (closures, try/catch, array methods); the runtime
// below drives __schedule/__setTimeout itself rather than depending on
// goja's internal job-queue plumbing, which keeps the whole executor's
// scheduling observable and unit-testable from Go.
const promisePolyfill = `
(function() {
  function PiPromise(executor) {
    this._state = 'pending';
    this._value = undefined;
    this._callbacks = [];
    var self = this;
    function resolve(value) {
      if (self._state !== 'pending') return;
      if (value && typeof value.then === 'function') {
        value.then(resolve, reject);
        return;
      }
      self._state = 'fulfilled';
      self._value = value;
      self._flush();
    }
    function reject(reason) {
      if (self._state !== 'pending') return;
      self._state = 'rejected';
      self._value = reason;
      self._flush();
    }
    try { executor(resolve, reject); } catch (e) { reject(e); }
  }
  PiPromise.prototype._flush = function() {
    var self = this;
    var callbacks = self._callbacks;
    self._callbacks = [];
    callbacks.forEach(function(cb) {
      __schedule(function() { cb(); });
    });
  };
  PiPromise.prototype.then = function(onFulfilled, onRejected) {
    var self = this;
    return new PiPromise(function(resolve, reject) {
      var handle = function() {
        try {
          if (self._state === 'fulfilled') {
            if (typeof onFulfilled === 'function') resolve(onFulfilled(self._value));
            else resolve(self._value);
          } else {
            if (typeof onRejected === 'function') resolve(onRejected(self._value));
            else reject(self._value);
          }
        } catch (e) { reject(e); }
      };
      if (self._state === 'pending') {
        self._callbacks.push(handle);
      } else {
        __schedule(handle);
      }
    });
  };
  PiPromise.prototype.catch = function(onRejected) {
    return this.then(undefined, onRejected);
  };
  PiPromise.resolve = function(value) {
    return new PiPromise(function(resolve) { resolve(value); });
  };
  PiPromise.reject = function(reason) {
    return new PiPromise(function(resolve, reject) { reject(reason); });
  };
  globalThis.Promise = PiPromise;

  globalThis.setTimeout = function(fn, delay) {
    return __setTimeout(fn, delay || 0);
  };
  globalThis.clearTimeout = function(id) {
    __clearTimeout(id);
  };
  globalThis.setInterval = globalThis.setTimeout;
  globalThis.clearInterval = globalThis.clearTimeout;
})();
`
